package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mchmarny/asdscreen/pkg/auth"
	urfave "github.com/urfave/cli/v3"
)

func newLoginCmd() *urfave.Command {
	return &urfave.Command{
		Name:   "login",
		Usage:  "Save the API token used by score and history",
		Action: cmdLogin,
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:  flagToken,
				Usage: "API token to save (optional, read from stdin when omitted)",
			},
		},
	}
}

func newLogoutCmd() *urfave.Command {
	return &urfave.Command{
		Name:   "logout",
		Usage:  "Remove the saved API token",
		Action: cmdLogout,
	}
}

func tokenStore() *auth.TokenStore {
	return auth.NewTokenStore(getHomeDir())
}

func reader(cmd *urfave.Command) io.Reader {
	if r := cmd.Root().Reader; r != nil {
		return r
	}
	return os.Stdin
}

func cmdLogin(_ context.Context, cmd *urfave.Command) error {
	w := writer(cmd)

	token := cmd.String(flagToken)
	if token == "" {
		fmt.Fprint(w, "Paste the API token and hit enter:\n>")
		line, err := bufio.NewReader(reader(cmd)).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading user input: %w", err)
		}
		token = strings.TrimSpace(line)
	}

	if err := tokenStore().Save(token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	fmt.Fprintln(w, "Token saved")
	return nil
}

func cmdLogout(_ context.Context, cmd *urfave.Command) error {
	if err := tokenStore().Delete(); err != nil {
		return fmt.Errorf("removing token: %w", err)
	}
	fmt.Fprintln(writer(cmd), "Token removed")
	return nil
}
