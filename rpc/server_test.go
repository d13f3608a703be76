package rpc

import (
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/reusee/sym/ontology"
	"github.com/reusee/sym/storage"
	"github.com/reusee/sym/tasks"
	"github.com/vmihailenco/msgpack/v5"
)

func TestProtocol(t *testing.T) {
	store := ontology.NewStore(storage.NewSpace(storage.DefaultPageBits))
	server := &Server{
		Store:  store,
		Task:   tasks.NewTask(store),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	client, remote := net.Pipe()
	done := make(chan struct{})
	go func() {
		server.handleConn(remote)
		close(done)
	}()
	defer func() {
		client.Close()
		<-done
	}()

	enc := msgpack.NewEncoder(client)
	dec := msgpack.NewDecoder(client)

	call := func(args ...any) {
		t.Helper()
		if err := enc.EncodeArrayLen(len(args)); err != nil {
			t.Fatal(err)
		}
		for _, arg := range args {
			var err error
			switch v := arg.(type) {
			case string:
				err = enc.EncodeString(v)
			case uint64:
				err = enc.EncodeUint64(v)
			case bool:
				err = enc.EncodeBool(v)
			case []byte:
				err = enc.EncodeBytes(v)
			default:
				t.Fatalf("bad argument %T", arg)
			}
			if err != nil {
				t.Fatal(err)
			}
		}
	}
	expectNat := func() uint64 {
		t.Helper()
		v, err := dec.DecodeUint64()
		if err != nil {
			t.Fatal(err)
		}
		return v
	}
	expectNil := func() {
		t.Helper()
		n, err := dec.DecodeArrayLen()
		if err != nil || n != 0 {
			t.Fatalf("expected empty array, got %d, %v", n, err)
		}
	}

	call("createSymbol")
	e := expectNat()
	call("createSymbol")
	a := expectNat()
	call("createSymbol")
	v := expectNat()
	if e < uint64(ontology.PreDefSymbolCount) || a <= e || v <= a {
		t.Fatalf("symbols %d %d %d", e, a, v)
	}

	call("link", e, a, v)
	expectNil()

	// mask: entity and attribute bound, value varying
	mask := uint64(ontology.MakeMask(ontology.Match, ontology.Match, ontology.Varying))
	call("query", true, mask, e, a, uint64(0))
	if count := expectNat(); count != 1 {
		t.Fatalf("count %d", count)
	}
	call("query", false, mask, e, a, uint64(0))
	n, err := dec.DecodeArrayLen()
	if err != nil || n != 1 {
		t.Fatalf("result length %d, %v", n, err)
	}
	if got := expectNat(); got != v {
		t.Fatalf("value %d, want %d", got, v)
	}

	call("setBlobSize", e, uint64(16))
	expectNil()
	call("getBlobSize", e)
	if size := expectNat(); size != 16 {
		t.Fatalf("size %d", size)
	}
	call("writeBlob", e, uint64(0), uint64(16), []byte{0xAB, 0xCD})
	expectNil()
	call("readBlob", e, uint64(0), uint64(16))
	data, err := dec.DecodeBytes()
	if err != nil || len(data) != 2 || data[0] != 0xAB || data[1] != 0xCD {
		t.Fatalf("read %x, %v", data, err)
	}

	call("increaseBlobSize", e, uint64(8), uint64(8))
	expectNil()
	call("getBlobSize", e)
	if size := expectNat(); size != 24 {
		t.Fatalf("size %d", size)
	}
	call("decreaseBlobSize", e, uint64(0), uint64(8))
	expectNil()
	call("getBlobSize", e)
	if size := expectNat(); size != 16 {
		t.Fatalf("size %d", size)
	}

	call("unlink", e, a, v)
	expectNil()
	call("query", true, mask, e, a, uint64(0))
	if count := expectNat(); count != 0 {
		t.Fatalf("count after unlink %d", count)
	}
}
