package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stuck-inadream/screenspot-pro/internal/mockdata"
	"github.com/stuck-inadream/screenspot-pro/internal/utils"
	"github.com/stuck-inadream/screenspot-pro/pkg/log"
)

func main() {
	var root string
	var count int
	flag.StringVar(&root, "root", ".", "directory to write data/ and baselines/ into")
	flag.IntVar(&count, "n", mockdata.DefaultCount, "number of examples")
	flag.Parse()

	m, err := mockdata.Generate(root, count)
	if err != nil {
		log.Error(log.Fields{"error": err.Error()}, "failed to generate mock dataset")
		os.Exit(1)
	}

	images, err := utils.ListImageFiles(m.ImagesDir)
	if err != nil {
		log.Error(log.Fields{"error": err.Error()}, "failed to list mock images")
		os.Exit(1)
	}
	var total int64
	for _, path := range images {
		if st, err := os.Stat(path); err == nil {
			total += st.Size()
			log.Debug(log.Fields{"image": filepath.Base(path), "size": utils.FormatFileSize(st.Size())}, "wrote example")
		}
	}
	log.Info(log.Fields{
		"examples": len(m.Records),
		"images":   len(images),
		"size":     utils.FormatFileSize(total),
		"priors":   m.PriorsPath,
	}, "mock dataset written")
	fmt.Println(m.AnnotationsPath)
}
