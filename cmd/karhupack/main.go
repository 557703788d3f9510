// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command karhupack bundles a directory tree into a kpk asset archive.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/karhu3d/karhu/asset"
)

var (
	outFile = flag.String("o", "assets.kpk", "archive to write")
	author  = flag.String("author", "", "archive author")
	version = flag.Int64("version", 1, "archive version")
	list    = flag.Bool("list", false, "list the entries of an existing archive instead of packing")
)

func main() {
	flag.Parse()

	if *list {
		listArchive(flag.Arg(0))
		return
	}

	dir := flag.Arg(0)
	if dir == "" {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <asset directory>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	builder, err := asset.NewBuilder(asset.Header{
		Author:      *author,
		DateCreated: time.Now().Unix(),
		Version:     *version,
	})
	if err != nil {
		log.WithError(err).Fatal("builder setup failed")
	}
	defer builder.Close()

	source := asset.Dir(dir)
	names, err := source.Names()
	if err != nil {
		log.WithError(err).Fatal("asset directory walk failed")
	}

	for _, name := range names {
		f, err := os.Open(dir + "/" + name)
		if err != nil {
			log.WithError(err).WithField("name", name).Fatal("asset unreadable")
		}
		if err := builder.Add(name, f); err != nil {
			f.Close()
			log.WithError(err).WithField("name", name).Fatal("compression failed")
		}
		f.Close()
		log.WithField("name", name).Info("packed")
	}

	out, err := os.Create(*outFile)
	if err != nil {
		log.WithError(err).Fatal("archive create failed")
	}
	defer out.Close()

	written, err := builder.WriteTo(out)
	if err != nil {
		log.WithError(err).Fatal("archive write failed")
	}
	log.WithFields(log.Fields{
		"archive": *outFile,
		"entries": len(names),
		"bytes":   written,
	}).Info("archive written")
}

func listArchive(path string) {
	if path == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -list <archive>\n", os.Args[0])
		os.Exit(2)
	}
	a, err := asset.OpenFile(path)
	if err != nil {
		log.WithError(err).Fatal("archive unreadable")
	}
	defer a.Close()

	names, err := a.Names()
	if err != nil {
		log.WithError(err).Fatal("archive index unreadable")
	}
	for _, name := range names {
		fmt.Println(name)
	}
}
