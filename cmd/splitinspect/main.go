package main

import (
	"fmt"
	"os"

	"github.com/go-json-experiment/json"

	"github.com/fulldump/goconfig"

	"github.com/fulldump/splittable/configuration"
	"github.com/fulldump/splittable/rowdef"
	"github.com/fulldump/splittable/splittable"
)

type report struct {
	Dir        string                      `json:"dir"`
	Prefix     string                      `json:"prefix"`
	Size       int                         `json:"size"`
	Partitions []splittable.PartitionStats `json:"partitions"`
}

func main() {
	c := configuration.Default()
	goconfig.Read(&c)

	if c.ShowConfig {
		out, _ := json.Marshal(c)
		fmt.Println(string(out))
		return
	}

	def := rowdef.New(c.RowSize, c.KeyLength)
	table, err := splittable.Open(c.Dir, c.Prefix, def, splittable.Options{
		AgeLimit:         c.AgeLimit,
		SizeLimit:        c.SizeLimit,
		UseTailCache:     c.UseTailCache,
		ExceedLargeLimit: c.ExceedLargeLimit,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "splitinspect:", err)
		os.Exit(1)
	}
	defer table.Close()

	r := report{
		Dir:        c.Dir,
		Prefix:     c.Prefix,
		Size:       table.Size(),
		Partitions: table.Stats(),
	}

	out, err := json.Marshal(r)
	if err != nil {
		fmt.Fprintln(os.Stderr, "splitinspect:", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
