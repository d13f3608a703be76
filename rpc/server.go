package rpc

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/reusee/dscope"
	"github.com/reusee/sym/engines"
	"github.com/reusee/sym/logs"
	"github.com/reusee/sym/ontology"
	"github.com/reusee/sym/storage"
	"github.com/reusee/sym/tasks"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/net/netutil"
)

type Module struct {
	dscope.Module
	Engines engines.Module
}

func (Module) Server(
	store *ontology.Store,
	task *tasks.Task,
	logger logs.Logger,
) *Server {
	return &Server{
		Store:  store,
		Task:   task,
		Logger: logger,
	}
}

// Server speaks the MessagePack wire protocol: each request is an
// array of a command string and positional arguments, each response a
// single value. The engine is single-threaded, so only one connection
// is served at a time.
type Server struct {
	Store  *ontology.Store
	Task   *tasks.Task
	Logger logs.Logger
}

func (s *Server) Serve(ln net.Listener) error {
	ln = netutil.LimitListener(ln, 1)
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		s.Logger.Info("connected", "remote", conn.RemoteAddr())
		if err := s.handleConn(conn); err != nil && !errors.Is(err, io.EOF) {
			s.Logger.Error("connection", "error", err)
		}
		conn.Close()
	}
}

func (s *Server) handleConn(conn net.Conn) error {
	dec := msgpack.NewDecoder(conn)
	enc := msgpack.NewEncoder(conn)
	for {
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return err
		}
		if n < 1 {
			return fmt.Errorf("empty request")
		}
		command, err := dec.DecodeString()
		if err != nil {
			return err
		}
		if err := s.handle(command, n-1, dec, enc); err != nil {
			return err
		}
	}
}

func (s *Server) sendNil(enc *msgpack.Encoder) error {
	return enc.EncodeArrayLen(0)
}

func arity(want, got int) error {
	if want != got {
		return fmt.Errorf("expected %d arguments, got %d", want, got)
	}
	return nil
}

func (s *Server) handle(command string, args int, dec *msgpack.Decoder, enc *msgpack.Encoder) error {
	store := s.Store
	blobStore := store.Blobs

	symbol := func() (storage.Symbol, error) {
		v, err := dec.DecodeUint64()
		return storage.Symbol(v), err
	}

	switch command {

	case "createSymbol":
		if err := arity(0, args); err != nil {
			return err
		}
		return enc.EncodeUint64(uint64(blobStore.CreateSymbol()))

	case "releaseSymbol":
		if err := arity(1, args); err != nil {
			return err
		}
		sym, err := symbol()
		if err != nil {
			return err
		}
		store.Destroy(sym)
		return s.sendNil(enc)

	case "getBlobSize":
		if err := arity(1, args); err != nil {
			return err
		}
		sym, err := symbol()
		if err != nil {
			return err
		}
		return enc.EncodeUint64(blobStore.GetSize(sym))

	case "setBlobSize":
		if err := arity(2, args); err != nil {
			return err
		}
		sym, err := symbol()
		if err != nil {
			return err
		}
		bits, err := dec.DecodeUint64()
		if err != nil {
			return err
		}
		blobStore.SetSize(sym, bits, 0)
		store.ModifiedBlob(sym)
		return s.sendNil(enc)

	case "decreaseBlobSize":
		if err := arity(3, args); err != nil {
			return err
		}
		sym, err := symbol()
		if err != nil {
			return err
		}
		at, err := dec.DecodeUint64()
		if err != nil {
			return err
		}
		length, err := dec.DecodeUint64()
		if err != nil {
			return err
		}
		blobStore.EraseRange(sym, at, at+length)
		store.ModifiedBlob(sym)
		return s.sendNil(enc)

	case "increaseBlobSize":
		if err := arity(3, args); err != nil {
			return err
		}
		sym, err := symbol()
		if err != nil {
			return err
		}
		at, err := dec.DecodeUint64()
		if err != nil {
			return err
		}
		length, err := dec.DecodeUint64()
		if err != nil {
			return err
		}
		blobStore.IncreaseSize(sym, at, length)
		store.ModifiedBlob(sym)
		return s.sendNil(enc)

	case "readBlob":
		if err := arity(3, args); err != nil {
			return err
		}
		sym, err := symbol()
		if err != nil {
			return err
		}
		offset, err := dec.DecodeUint64()
		if err != nil {
			return err
		}
		length, err := dec.DecodeUint64()
		if err != nil {
			return err
		}
		buf := make([]byte, (length+7)/8)
		for i := range buf {
			n := min(length-uint64(i)*8, 8)
			buf[i] = byte(blobStore.ReadBitsAt(sym, offset+uint64(i)*8, n))
		}
		return enc.EncodeBytes(buf)

	case "writeBlob":
		if err := arity(4, args); err != nil {
			return err
		}
		sym, err := symbol()
		if err != nil {
			return err
		}
		offset, err := dec.DecodeUint64()
		if err != nil {
			return err
		}
		length, err := dec.DecodeUint64()
		if err != nil {
			return err
		}
		payload, err := dec.DecodeBytes()
		if err != nil {
			return err
		}
		if uint64(len(payload)) != (length+7)/8 {
			return fmt.Errorf("payload length mismatch")
		}
		for i, b := range payload {
			n := min(length-uint64(i)*8, 8)
			blobStore.WriteBitsAt(sym, offset+uint64(i)*8, n, uint64(b))
		}
		store.ModifiedBlob(sym)
		return s.sendNil(enc)

	case "deserializeBlob":
		if err := arity(2, args); err != nil {
			return err
		}
		input, err := symbol()
		if err != nil {
			return err
		}
		pkg, err := symbol()
		if err != nil {
			return err
		}
		s.Task.DeserializationTask(input, pkg)
		if s.Task.UncaughtException() {
			return s.sendNil(enc)
		}
		var outputs []storage.Symbol
		store.Query(ontology.MaskMMV, ontology.Triple{s.Task.Block(), ontology.OutputSymbol, ontology.VoidSymbol}, func(result ontology.Triple) {
			outputs = append(outputs, result[2])
		})
		if len(outputs) == 1 {
			return enc.EncodeUint64(uint64(outputs[0]))
		}
		if err := enc.EncodeArrayLen(len(outputs)); err != nil {
			return err
		}
		for _, out := range outputs {
			if err := enc.EncodeUint64(uint64(out)); err != nil {
				return err
			}
		}
		return nil

	case "query":
		if err := arity(5, args); err != nil {
			return err
		}
		countOnly, err := dec.DecodeBool()
		if err != nil {
			return err
		}
		mask, err := dec.DecodeUint64()
		if err != nil {
			return err
		}
		if mask >= 27 {
			return fmt.Errorf("bad query mask %d", mask)
		}
		var triple ontology.Triple
		for i := range triple {
			if triple[i], err = symbol(); err != nil {
				return err
			}
		}
		modes := [3]ontology.Mode{
			ontology.Mode(mask % 3),
			ontology.Mode(mask / 3 % 3),
			ontology.Mode(mask / 9 % 3),
		}
		var result []uint64
		count := store.Query(ontology.Mask(mask), triple, func(found ontology.Triple) {
			for i, mode := range modes {
				if mode == ontology.Varying {
					result = append(result, uint64(found[i]))
				}
			}
		})
		if countOnly {
			return enc.EncodeUint64(count)
		}
		if err := enc.EncodeArrayLen(len(result)); err != nil {
			return err
		}
		for _, v := range result {
			if err := enc.EncodeUint64(v); err != nil {
				return err
			}
		}
		return nil

	case "link", "unlink":
		if err := arity(3, args); err != nil {
			return err
		}
		var triple ontology.Triple
		var err error
		for i := range triple {
			if triple[i], err = symbol(); err != nil {
				return err
			}
		}
		if command == "link" {
			store.Link(triple)
		} else {
			store.Unlink(triple)
		}
		return s.sendNil(enc)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
