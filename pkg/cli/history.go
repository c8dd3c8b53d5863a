package cli

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mchmarny/asdscreen/pkg/data"
	"github.com/mchmarny/asdscreen/pkg/net"
	urfave "github.com/urfave/cli/v3"
)

const (
	flagLimit = "limit"
	flagDSN   = "dsn"
)

func newHistoryCmd() *urfave.Command {
	return &urfave.Command{
		Name:   "history",
		Usage:  "List recent prediction requests from the audit store",
		Action: cmdHistory,
		Flags: []urfave.Flag{
			newURLFlag(),
			newTokenFlag(),
			&urfave.IntFlag{
				Name:  flagLimit,
				Usage: "Number of most recent events to list",
				Value: data.DefaultListLimit,
			},
			&urfave.StringFlag{
				Name:  flagDSN,
				Usage: "Read a local audit store (sqlite path or postgres:// URL) instead of the server",
			},
		},
	}
}

func cmdHistory(ctx context.Context, cmd *urfave.Command) error {
	limit := cmd.Int(flagLimit)

	var (
		res *historyResponse
		err error
	)
	if dsn := cmd.String(flagDSN); dsn != "" {
		res, err = localHistory(ctx, dsn, limit)
	} else {
		res, err = remoteHistory(ctx, cmd, limit)
	}
	if err != nil {
		return err
	}
	return encode(writer(cmd), res)
}

func localHistory(ctx context.Context, dsn string, limit int) (*historyResponse, error) {
	store, err := data.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening audit store: %w", err)
	}
	defer store.Close()

	events, err := store.ListEvents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}

	sum, err := store.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("summarizing events: %w", err)
	}
	return &historyResponse{Summary: sum, Events: events}, nil
}

func remoteHistory(ctx context.Context, cmd *urfave.Command, limit int) (*historyResponse, error) {
	client, err := net.GetClient(ctx, resolveToken(cmd))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP client: %w", err)
	}

	u := endpoint(cmd.String(flagURL), "history") + "?" +
		url.Values{"limit": []string{strconv.Itoa(limit)}}.Encode()

	var res historyResponse
	if err := net.GetJSON(ctx, client, u, &res); err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	return &res, nil
}
