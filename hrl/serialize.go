package hrl

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/reusee/sym/ontology"
	"github.com/reusee/sym/storage"
	"github.com/reusee/sym/tasks"
)

func procSerialize(t *tasks.Task) error {
	input, err := t.Store.GetGuaranteed(t.Block(), ontology.InputSymbol)
	if err != nil {
		return err
	}
	return t.WriteOutput(t.Store.CreateFromText(Serialize(t.Store, input)))
}

// Serialize renders the triples of one entity as a single group: the
// entity declared first, then one clause per attribute. Deserializing
// the result reproduces the triple set, with symbols that have no
// printable payload coming back as fresh locals. Integer blobs holding
// non-negative values print as plain digits and come back typed
// Natural.
func Serialize(store *ontology.Store, entity storage.Symbol) string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(renderSymbol(store, entity))
	b.WriteString(";")

	// an entity printed as a typed literal gets its BlobType triple back
	// from the deserializer, so printing it again would define it twice
	skipBlobType := false
	if blobType, ok := store.GetUncertain(entity, ontology.BlobTypeSymbol); ok {
		switch blobType {
		case ontology.TextSymbol, ontology.NaturalSymbol, ontology.IntegerSymbol, ontology.FloatSymbol:
			skipBlobType = true
		}
	}

	var attributes []storage.Symbol
	store.Query(
		ontology.MakeMask(ontology.Match, ontology.Varying, ontology.Ignore),
		ontology.Triple{entity, ontology.VoidSymbol, ontology.VoidSymbol},
		func(result ontology.Triple) {
			attributes = append(attributes, result[1])
		})
	for _, attribute := range attributes {
		if skipBlobType && attribute == ontology.BlobTypeSymbol {
			continue
		}
		b.WriteString(" ")
		b.WriteString(renderSymbol(store, attribute))
		store.Query(ontology.MaskMMV, ontology.Triple{entity, attribute, ontology.VoidSymbol}, func(result ontology.Triple) {
			b.WriteString(" ")
			b.WriteString(renderSymbol(store, result[2]))
		})
		b.WriteString(";")
	}
	b.WriteString(")")
	return b.String()
}

func renderSymbol(store *ontology.Store, sym storage.Symbol) string {
	if blobType, ok := store.GetUncertain(sym, ontology.BlobTypeSymbol); ok {
		switch blobType {
		case ontology.TextSymbol:
			text := string(store.Blobs.ReadBytes(sym))
			if plainToken(text) {
				return text
			}
			return quote(text)
		case ontology.NaturalSymbol:
			return strconv.FormatUint(store.Blobs.ReadBitsAt(sym, 0, 64), 10)
		case ontology.IntegerSymbol:
			return strconv.FormatInt(int64(store.Blobs.ReadBitsAt(sym, 0, 64)), 10)
		case ontology.FloatSymbol:
			value := math.Float64frombits(store.Blobs.ReadBitsAt(sym, 0, 64))
			text := strconv.FormatFloat(value, 'f', -1, 64)
			// without a dot the scanner would read an integral value back
			// as a Natural or an Integer
			if !strings.Contains(text, ".") && !math.IsInf(value, 0) && !math.IsNaN(value) {
				text += ".0"
			}
			return text
		}
	}
	if size := store.Blobs.GetSize(sym); size > 0 {
		var b strings.Builder
		b.WriteString(rawBegin)
		for off := uint64(0); off < size; off += 4 {
			n := min(size-off, 4)
			b.WriteByte(hexDigit(store.Blobs.ReadBitsAt(sym, off, n)))
		}
		return b.String()
	}
	return fmt.Sprintf("#s%d", sym)
}

func hexDigit(n uint64) byte {
	if n < 10 {
		return byte('0' + n)
	}
	return byte('A' + n - 10)
}

func quote(text string) string {
	var b strings.Builder
	b.WriteString(`"`)
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(text[i])
		}
	}
	b.WriteString(`"`)
	return b.String()
}

// plainToken reports whether the text survives a round trip as a bare
// token: no structural characters, no whitespace, and not something
// the scanner would read as a number, local or raw literal.
func plainToken(text string) bool {
	if text == "" {
		return false
	}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case ' ', '\t', '\n', '(', ')', ';', '"', '\\':
			return false
		}
	}
	if text[0] == '#' {
		return false
	}
	if strings.HasPrefix(text, rawBegin) {
		return false
	}
	if looksNumeric(text) {
		return false
	}
	return true
}

func looksNumeric(text string) bool {
	i := 0
	if text[0] == '-' {
		i = 1
	}
	devisor := uint64(0)
	for ; i < len(text); i++ {
		devisor *= 10
		c := text[i]
		if c >= '0' && c <= '9' {
			continue
		}
		if c == '.' {
			if devisor > 0 {
				return false
			}
			devisor = 1
			continue
		}
		return false
	}
	return devisor != 1
}
