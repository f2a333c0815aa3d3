package parse

import (
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/spkg/bom"

	"homesrv.dev/dbtimetable/model"
)

type stationsXML struct {
	XMLName  xml.Name     `xml:"stations"`
	Stations []stationXML `xml:"station"`
}

type stationXML struct {
	Name  string `xml:"name,attr"`
	EVA   string `xml:"eva,attr"`
	DS100 string `xml:"ds100,attr"`
}

// Stations decoded from a station document, in document order.
type StationList struct {
	Stations []model.Station
	Skipped  []error
}

// Parses the response of the station lookup endpoint. Entries lacking
// eva or name are skipped.
func ParseStations(buf []byte) (*StationList, error) {
	doc := &stationsXML{}
	if err := xml.Unmarshal(buf, doc); err != nil {
		return nil, fmt.Errorf("unmarshaling stations xml: %w", err)
	}

	list := &StationList{Stations: []model.Station{}}
	for i, s := range doc.Stations {
		st, err := newStation(s.EVA, s.Name, s.DS100)
		if err != nil {
			list.Skipped = append(list.Skipped, errors.Wrapf(err, "station %d", i+1))
			continue
		}
		list.Stations = append(list.Stations, st)
	}

	return list, nil
}

// Row of DB's published station list (D_Bahnhof_*.csv). Only the
// columns we use are listed.
type StationCSV struct {
	EVA   string `csv:"EVA_NR"`
	DS100 string `csv:"DS100"`
	Name  string `csv:"NAME"`
	// IFOPT   string `csv:"IFOPT"`
	// Verkehr string `csv:"Verkehr"`
	// Laenge  string `csv:"Laenge"`
	// Breite  string `csv:"Breite"`
	// Status  string `csv:"Status"`
}

// Parses DB's semicolon separated station list. Used to seed the
// station directory when the API can't be reached.
func ParseStationsCSV(data io.Reader) (*StationList, error) {
	// The published file comes with a BOM and the odd stray quote.
	r := csv.NewReader(bom.NewReader(data))
	r.Comma = ';'
	r.LazyQuotes = true

	rows := []*StationCSV{}
	if err := gocsv.UnmarshalCSV(r, &rows); err != nil {
		return nil, errors.Wrap(err, "unmarshaling stations csv")
	}

	list := &StationList{Stations: []model.Station{}}
	for i, row := range rows {
		st, err := newStation(row.EVA, row.Name, row.DS100)
		if err != nil {
			// Header is line 1
			list.Skipped = append(list.Skipped, errors.Wrapf(err, "row %d", i+2))
			continue
		}
		list.Stations = append(list.Stations, st)
	}

	return list, nil
}

func newStation(eva, name, ds100 string) (model.Station, error) {
	eva = strings.TrimSpace(eva)
	name = strings.TrimSpace(name)
	if eva == "" {
		return model.Station{}, fmt.Errorf("empty eva")
	}
	if name == "" {
		return model.Station{}, fmt.Errorf("empty name for eva '%s'", eva)
	}
	return model.Station{ID: eva, Name: name, DS100: strings.TrimSpace(ds100)}, nil
}
