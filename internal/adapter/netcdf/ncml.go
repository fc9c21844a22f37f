package netcdf

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
)

const ncmlNamespace = "http://www.unidata.ucar.edu/namespaces/netcdf/ncml-2.2"

// Descriptor parameterizes the time-joined aggregation of a cycle.
type Descriptor struct {
	Title     string // optional global title
	Cycle     string // scan location relative to the descriptor, "<cycle>/processed/"
	Units     string // CF units of the time axis
	FirstLead int
	Increment int
}

type ncmlNetcdf struct {
	XMLName     xml.Name        `xml:"netcdf"`
	Xmlns       string          `xml:"xmlns,attr"`
	Attribute   []ncmlAttribute `xml:"attribute"`
	Variable    ncmlVariable    `xml:"variable"`
	Aggregation ncmlAggregation `xml:"aggregation"`
}

type ncmlVariable struct {
	Name      string          `xml:"name,attr"`
	Type      string          `xml:"type,attr"`
	Attribute []ncmlAttribute `xml:"attribute"`
	Values    ncmlValues      `xml:"values"`
}

type ncmlAttribute struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type ncmlValues struct {
	Start     string `xml:"start,attr"`
	Increment string `xml:"increment,attr"`
}

type ncmlAggregation struct {
	DimName      string   `xml:"dimName,attr"`
	Type         string   `xml:"type,attr"`
	RecheckEvery string   `xml:"recheckEvery,attr"`
	Scan         ncmlScan `xml:"scan"`
}

type ncmlScan struct {
	Location string `xml:"location,attr"`
	Suffix   string `xml:"suffix,attr"`
}

// MarshalDescriptor renders the NcML document.
func MarshalDescriptor(d Descriptor) ([]byte, error) {
	doc := ncmlNetcdf{
		Xmlns: ncmlNamespace,
		Variable: ncmlVariable{
			Name: "time",
			Type: "int",
			Attribute: []ncmlAttribute{
				{Name: "units", Value: d.Units},
				{Name: "_CoordinateAxisType", Value: "Time"},
			},
			Values: ncmlValues{Start: strconv.Itoa(d.FirstLead), Increment: strconv.Itoa(d.Increment)},
		},
		Aggregation: ncmlAggregation{
			DimName:      "time",
			Type:         "joinExisting",
			RecheckEvery: "1 hour",
			Scan:         ncmlScan{Location: d.Cycle + "/processed/", Suffix: ".nc"},
		},
	}
	if d.Title != "" {
		doc.Attribute = []ncmlAttribute{{Name: "title", Value: d.Title}}
	}
	out, err := xml.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshal ncml: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

// WriteDescriptor writes the NcML document to path, replacing any previous one.
func WriteDescriptor(path string, d Descriptor) error {
	data, err := MarshalDescriptor(d)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o666); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
