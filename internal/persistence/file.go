// Package persistence writes finalized session archives to dated JSON files.
package persistence

import (
	"encoding/json"
	"os"
	"path"
	"time"
)

// DataFile describes a written archive file.
type DataFile struct {
	// Prefix is the data directory the file was written under.
	Prefix string
	// Datatype is the archive's datatype (e.g. "relay1").
	Datatype string
	// Subtest further qualifies the datatype in the filename.
	Subtest string
	// UUID is the archived entity's unique identifier.
	UUID string
	// Path is the full path of the written file.
	Path string
	// Size is the number of bytes written.
	Size int
}

// WriteDataFile marshals result to JSON and writes it under
// <prefix>/<datatype>/<yyyy/mm/dd>/, with a timestamped filename ending in
// the entity's UUID. The directory hierarchy is created as needed.
func WriteDataFile(prefix, datatype, subtest, uuid string, result interface{}) (*DataFile, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now()
	dir := path.Join(prefix, datatype, timestamp.Format("2006/01/02"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	filepath := path.Join(dir, datatype+"-"+subtest+"-"+
		timestamp.Format("20060102T150405.000000000Z")+"."+uuid+".json")
	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return nil, err
	}

	return &DataFile{
		Prefix:   prefix,
		Datatype: datatype,
		Subtest:  subtest,
		UUID:     uuid,
		Path:     filepath,
		Size:     len(data),
	}, nil
}
