package parse

import (
	"encoding/json"
	"fmt"

	"homesrv.dev/dbtimetable/model"
)

type disruptionsJSON struct {
	Disruptions *[]model.Disruption `json:"disruptions"`
}

// Parses the disruptions feed. A document without a "disruptions"
// member is treated as malformed, an empty list is not.
func ParseDisruptions(buf []byte) ([]model.Disruption, error) {
	doc := disruptionsJSON{}
	if err := json.Unmarshal(buf, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling disruptions json: %w", err)
	}
	if doc.Disruptions == nil {
		return nil, fmt.Errorf("missing disruptions")
	}
	return *doc.Disruptions, nil
}
