// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"bytes"
	"testing"
	"time"
)

func TestAddAndWrite(t *testing.T) {
	builder, err := NewBuilder(Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer builder.Close()

	if err := builder.Add("test", bytes.NewReader([]byte("idunvovkjnreovmegihjbrqlkmfrjnb"))); err != nil {
		t.Error(err)
	}
	if err := builder.Add("test2", bytes.NewReader([]byte("idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"))); err != nil {
		t.Error(err)
	}

	if len(builder.files) != 2 {
		t.Error("incorrect number of files present")
	}

	buf := bytes.NewBuffer([]byte{})
	num, err := builder.WriteTo(buf)
	if err != nil {
		t.Error(err)
	}
	if num != int64(buf.Len()) {
		t.Errorf("reported %d bytes written, buffer holds %d", num, buf.Len())
	}
	if len(builder.files) != 0 {
		t.Error("builder not emptied after WriteTo")
	}
}

func TestAddDuplicate(t *testing.T) {
	builder, err := NewBuilder(Header{Version: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer builder.Close()

	if err := builder.Add("test", bytes.NewReader([]byte("a"))); err != nil {
		t.Fatal(err)
	}
	if err := builder.Add("test", bytes.NewReader([]byte("b"))); err == nil {
		t.Error("expected duplicate entry error")
	}
}

func TestIndexOffsets(t *testing.T) {
	builder, err := NewBuilder(Header{Version: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer builder.Close()

	builder.Add("a", bytes.NewReader(bytes.Repeat([]byte("a"), 100)))
	builder.Add("b", bytes.NewReader(bytes.Repeat([]byte("b"), 300)))

	buf := bytes.NewBuffer([]byte{})
	if _, err := builder.WriteTo(buf); err != nil {
		t.Fatal(err)
	}
	ar, err := Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	index := ar.Header().Index
	if index[0].Offset != 0 {
		t.Errorf("first entry at offset %d", index[0].Offset)
	}
	if index[1].Offset != index[0].CompressedSize {
		t.Errorf("second entry at offset %d, want %d", index[1].Offset, index[0].CompressedSize)
	}
	if index[1].Size != 300 {
		t.Errorf("second entry size %d", index[1].Size)
	}
}
