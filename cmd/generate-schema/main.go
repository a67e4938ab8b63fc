package main

import (
	"flag"
	"os"

	"github.com/m-lab/go/cloud/bqx"
	"github.com/m-lab/go/rtx"

	"cloud.google.com/go/bigquery"

	"github.com/Rachana904/v2vcommunication/pkg/relay1/model"
)

var relay1Schema string

func init() {
	flag.StringVar(&relay1Schema, "relay1", "/var/spool/datatypes/relay1.json", "filename to write relay1 schema")
}

func main() {
	flag.Parse()
	// Generate and save the session archive schema for autoloading.
	archive := model.SessionArchive{}
	sch, err := bigquery.InferSchema(archive)
	rtx.Must(err, "failed to generate relay1 schema")
	sch = bqx.RemoveRequired(sch)
	b, err := sch.ToJSONFields()
	rtx.Must(err, "failed to marshal relay1 schema")
	err = os.WriteFile(relay1Schema, b, 0o644)
	rtx.Must(err, "failed to write relay1 schema")
}
