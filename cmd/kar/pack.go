// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/devblok/korurt/utility/kar"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var packFlags struct {
	out     string
	author  string
	version int64
	force   bool
}

var packCmd = &cobra.Command{
	Use:   "pack <dir|file>...",
	Short: "Compress files and directories into an archive",
	Long: `pack walks every argument and stores each regular file under its
slash separated path relative to the argument, so packing a shader
directory yields names like raygen.rgen.spv.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return pack(packFlags.out, packFlags.force, kar.Header{
			Author:      packFlags.author,
			DateCreated: time.Now().Unix(),
			Version:     packFlags.version,
		}, args, logger())
	},
}

func init() {
	f := packCmd.Flags()
	f.StringVarP(&packFlags.out, "file", "f", "out.kar", "destination file")
	f.StringVar(&packFlags.author, "author", currentUserName(), "author of the archive")
	f.Int64Var(&packFlags.version, "version", 1, "archive version number")
	f.BoolVar(&packFlags.force, "force", false, "overwrite the destination")
	rootCmd.AddCommand(packCmd)
}

type packEntry struct {
	name, path string
}

func collect(roots []string) ([]packEntry, error) {
	var entries []packEntry
	for _, root := range roots {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if rel == "." {
				rel = filepath.Base(path)
			}
			entries = append(entries, packEntry{name: filepath.ToSlash(rel), path: path})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func pack(out string, force bool, header kar.Header, roots []string, log logrus.FieldLogger) error {
	if _, err := os.Stat(out); err == nil && !force {
		return errors.Errorf("%s exists, will not overwrite", out)
	}

	entries, err := collect(roots)
	if err != nil {
		return err
	}

	builder, err := kar.NewBuilder(header)
	if err != nil {
		return err
	}
	defer builder.Close()

	for _, e := range entries {
		if err := addFile(builder, e); err != nil {
			return err
		}
		log.WithField("name", e.name).Info("added")
	}

	dst, err := os.Create(out)
	if err != nil {
		return err
	}
	n, err := builder.WriteTo(dst)
	if err != nil {
		dst.Close()
		return err
	}
	log.WithFields(logrus.Fields{
		"files": len(entries),
		"bytes": n,
	}).Infof("wrote %s", out)
	return dst.Close()
}

func addFile(b *kar.Builder, e packEntry) error {
	f, err := os.Open(e.path)
	if err != nil {
		return err
	}
	defer f.Close()
	return b.Add(e.name, f)
}
