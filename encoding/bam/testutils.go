// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"fmt"
	"io"
	"os"

	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// NewRecord creates a record for use in tests.
func NewRecord(name string, ref *sam.Reference, pos int, flags sam.Flags, matePos int, mateRef *sam.Reference, cigar sam.Cigar) *sam.Record {
	r := sam.GetFromFreePool()
	r.Name = name
	r.Ref = ref
	r.Pos = pos
	r.MatePos = matePos
	r.MateRef = mateRef
	r.Flags = flags
	r.Cigar = cigar
	r.MapQ = 60
	return r
}

// NewAux creates a sam.Aux, panicking on error.
func NewAux(name string, val interface{}) sam.Aux {
	aux, err := sam.NewAux(sam.NewTag(name), val)
	if err != nil {
		panic(fmt.Sprintf("error creating %s %v tag: %v", name, val, err))
	}
	return aux
}

// WriteBAMWithIndex writes recs to a BAM file at path, and its index to
// path+".bai". recs must be sorted by coordinate.
func WriteBAMWithIndex(path string, header *sam.Header, recs []*sam.Record) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	w, err := bam.NewWriter(out, header, 1)
	if err != nil {
		out.Close() // nolint: errcheck
		return err
	}
	for _, r := range recs {
		if err := w.Write(r); err != nil {
			out.Close() // nolint: errcheck
			return err
		}
	}
	if err := w.Close(); err != nil {
		out.Close() // nolint: errcheck
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return writeIndex(path)
}

func writeIndex(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close() // nolint: errcheck
	r, err := bam.NewReader(in, 1)
	if err != nil {
		return err
	}
	defer r.Close() // nolint: errcheck
	var idx bam.Index
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := idx.Add(rec, r.LastChunk()); err != nil {
			return err
		}
	}
	out, err := os.Create(path + ".bai")
	if err != nil {
		return err
	}
	if err := bam.WriteIndex(out, &idx); err != nil {
		out.Close() // nolint: errcheck
		return err
	}
	return out.Close()
}
