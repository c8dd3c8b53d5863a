package model

import "encoding/json"

// The marshalers below add the kind envelope so the output decodes with
// DecodeImputer and DecodeClassifier.

func (m SimpleImputer) MarshalJSON() ([]byte, error) {
	type alias SimpleImputer
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{KindSimpleImputer, alias(m)})
}

func (m LogisticRegression) MarshalJSON() ([]byte, error) {
	type alias LogisticRegression
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{KindLogistic, alias(m)})
}

func (m RandomForest) MarshalJSON() ([]byte, error) {
	type alias RandomForest
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{KindForest, alias(m)})
}
