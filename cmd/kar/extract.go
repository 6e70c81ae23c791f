// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/devblok/korurt/utility/kar"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/exp/mmap"
)

var extractDir string

var listCmd = &cobra.Command{
	Use:   "list <archive>",
	Short: "Print the archive header and index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(args[0], func(ar *kar.Archive) error {
			return list(cmd.OutOrStdout(), ar)
		})
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <archive> [name]...",
	Short: "Extract all or the named files of an archive",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(args[0], func(ar *kar.Archive) error {
			return extract(ar, extractDir, args[1:], logger())
		})
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractDir, "dir", "C", ".", "destination directory")
	rootCmd.AddCommand(listCmd, extractCmd)
}

func withArchive(path string, fn func(*kar.Archive) error) error {
	r, err := mmap.Open(path)
	if err != nil {
		return errors.Wrap(err, "mmap.Open()")
	}
	defer r.Close()

	ar, err := kar.Open(r)
	if err != nil {
		return errors.Wrapf(err, "kar.Open(%s)", path)
	}
	return fn(ar)
}

func list(w io.Writer, ar *kar.Archive) error {
	h := ar.Header()
	fmt.Fprintf(w, "author:  %s\n", h.Author)
	fmt.Fprintf(w, "created: %s\n", time.Unix(h.DateCreated, 0).UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "version: %d\n", h.Version)
	for _, e := range h.Index {
		if _, err := fmt.Fprintf(w, "%10d %10d %s\n", e.Size, e.CompressedSize, e.Name); err != nil {
			return err
		}
	}
	return nil
}

func extract(ar *kar.Archive, dir string, names []string, log logrus.FieldLogger) error {
	if len(names) == 0 {
		names = ar.Names()
	}
	for _, name := range names {
		dst := filepath.Join(dir, filepath.FromSlash(name))
		if rel, err := filepath.Rel(dir, dst); err != nil || strings.HasPrefix(rel, "..") {
			return errors.Errorf("%s escapes the destination", name)
		}
		if err := extractFile(ar, name, dst); err != nil {
			return err
		}
		log.WithField("name", name).Info("extracted")
	}
	return nil
}

func extractFile(ar *kar.Archive, name, dst string) error {
	r, err := ar.Open(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.CopyN(f, r, r.Size()); err != nil {
		f.Close()
		return errors.Wrapf(err, "extract %s", name)
	}
	return f.Close()
}
