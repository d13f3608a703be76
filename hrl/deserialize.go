package hrl

import (
	"github.com/reusee/sym/ontology"
	"github.com/reusee/sym/storage"
	"github.com/reusee/sym/tasks"
)

const rawBegin = "raw:"

func init() {
	tasks.RegisterProcedure(ontology.DeserializeSymbol, procDeserialize)
	tasks.RegisterProcedure(ontology.SerializeSymbol, procSerialize)
}

func procDeserialize(t *tasks.Task) error {
	d := &deserializer{
		task:   t,
		store:  t.Store,
		locals: make(map[string]storage.Symbol),
	}
	return d.run()
}

// frame is one level of bracket nesting. entity is the group entity a
// single-token clause declared, lastEntity the entity of the latest
// clause. The unnest pair makes the next token in this frame complete
// a pending (entity, attribute, ·) triple.
type frame struct {
	entity          storage.Symbol
	lastEntity      storage.Symbol
	unnestEntity    storage.Symbol
	unnestAttribute storage.Symbol
	queue           []storage.Symbol
}

type deserializer struct {
	task  *tasks.Task
	store *ontology.Store
	pkg   storage.Symbol

	input      []byte
	pos        int
	tokenBegin int
	row        uint64
	column     uint64

	stack  []*frame
	locals map[string]storage.Symbol
}

func (d *deserializer) raise(message string) error {
	return &PosError{
		Err: &tasks.Raise{
			Message: message,
			Attrs: [][2]storage.Symbol{
				{ontology.RowSymbol, d.store.CreateFromNatural(d.row)},
				{ontology.ColumnSymbol, d.store.CreateFromNatural(d.column)},
			},
		},
		Row:    d.row,
		Column: d.column,
	}
}

func (d *deserializer) current() *frame {
	return d.stack[len(d.stack)-1]
}

func (d *deserializer) parent() *frame {
	return d.stack[len(d.stack)-2]
}

func (d *deserializer) run() error {
	store := d.store
	block := d.task.Block()

	pkg, err := store.GetGuaranteed(block, ontology.PackageSymbol)
	if err != nil {
		return err
	}
	d.pkg = pkg
	input, err := store.GetGuaranteed(block, ontology.InputSymbol)
	if err != nil {
		return err
	}
	if !store.TripleExists(ontology.Triple{input, ontology.BlobTypeSymbol, ontology.TextSymbol}) {
		return &tasks.Raise{Message: "Invalid Blob Type"}
	}
	d.input = store.Blobs.ReadBytes(input)
	size := store.Blobs.GetSize(input)
	d.input = d.input[:size/8]

	d.row, d.column = 1, 1
	d.stack = []*frame{{}}

	for d.pos < len(d.input) {
		switch d.input[d.pos] {

		case '\n':
			if err := d.parseToken(false); err != nil {
				return err
			}
			d.column = 0
			d.row++

		case '\t':
			d.column += 3
			if err := d.parseToken(false); err != nil {
				return err
			}

		case ' ':
			if err := d.parseToken(false); err != nil {
				return err
			}

		case '"':
			d.tokenBegin = d.pos + 1
			for {
				if d.pos+1 >= len(d.input) {
					return d.raise("Unterminated text")
				}
				plain := d.input[d.pos] != '\\'
				d.pos++
				if plain {
					if d.input[d.pos] == '\\' {
						continue
					}
					if d.input[d.pos] == '"' {
						break
					}
				}
			}
			if err := d.parseToken(true); err != nil {
				return err
			}

		case '(':
			if err := d.parseToken(false); err != nil {
				return err
			}
			d.stack = append(d.stack, &frame{})

		case ';':
			if len(d.stack) == 1 {
				return d.raise("Semicolon outside of any brackets")
			}
			if err := d.separate(true); err != nil {
				return err
			}
			if d.current().unnestEntity != ontology.VoidSymbol {
				return d.raise("Unnesting failed")
			}

		case ')':
			if len(d.stack) == 1 {
				return d.raise("Unmatched closing bracket")
			}
			if err := d.separate(false); err != nil {
				return err
			}
			cur := d.current()
			if len(d.stack) == 2 && d.parent().unnestEntity == ontology.VoidSymbol {
				if cur.lastEntity == ontology.VoidSymbol {
					return d.raise("Nothing declared")
				}
				if store.Query(ontology.MaskMVV, ontology.Triple{cur.lastEntity, ontology.VoidSymbol, ontology.VoidSymbol}, nil) == 0 {
					return d.raise("Nothing declared")
				}
			}
			if cur.unnestEntity != ontology.VoidSymbol {
				return d.raise("Unnesting failed")
			}
			d.stack = d.stack[:len(d.stack)-1]
		}
		d.column++
		d.pos++
	}
	if err := d.parseToken(false); err != nil {
		return err
	}

	if len(d.stack) != 1 {
		return d.raise("Missing closing bracket")
	}
	root := d.stack[0]
	if len(root.queue) == 0 {
		return d.raise("Empty Input")
	}

	if outputAttr, ok := store.GetUncertain(block, ontology.OutputSymbol); ok {
		target := d.task.PopCallStackTarget()
		store.UnlinkAttribute(target, outputAttr)
		for _, sym := range root.queue {
			store.Link(ontology.Triple{target, outputAttr, sym})
		}
	} else {
		d.task.PopCallStack()
	}
	return nil
}

// parseToken turns the bytes since tokenBegin into a symbol and feeds
// it to the current frame. Quoted text keeps its escapes verbatim.
func (d *deserializer) parseToken(isText bool) error {
	defer func() {
		d.tokenBegin = d.pos + 1
	}()
	if d.pos <= d.tokenBegin {
		return nil
	}
	token := d.input[d.tokenBegin:d.pos]
	store := d.store

	var sym storage.Symbol
	switch {

	case isText:
		sym = store.CreateFromText(string(token))

	case token[0] == '#':
		key := string(token)
		if local, ok := d.locals[key]; ok {
			sym = local
		} else {
			sym = store.Blobs.CreateSymbol()
			store.Blobs.WriteBytes(sym, token)
			store.Link(ontology.Triple{sym, ontology.BlobTypeSymbol, ontology.TextSymbol})
			d.locals[key] = sym
		}

	case len(token) > len(rawBegin) && string(token[:len(rawBegin)]) == rawBegin:
		nibbles := token[len(rawBegin):]
		sym = store.Blobs.CreateSymbol()
		store.Blobs.SetSize(sym, uint64(len(nibbles))*4, 0)
		for i, c := range nibbles {
			var nibble uint64
			switch {
			case c >= '0' && c <= '9':
				nibble = uint64(c - '0')
			case c >= 'A' && c <= 'F':
				nibble = uint64(c-'A') + 0xA
			default:
				return d.raise("Non hex characters")
			}
			store.Blobs.WriteBitsAt(sym, uint64(i)*4, 4, nibble)
		}

	case string(token) == rawBegin:
		return d.raise("Empty raw data")

	default:
		sym = d.parseLiteral(token)
	}

	store.Link(ontology.Triple{d.pkg, ontology.HoldsSymbol, sym})
	return d.nextSymbol(d.current(), sym)
}

// parseLiteral decides between number and text: digits with at most
// one interior dot are numeric, everything else is a text blob. A
// trailing dot disqualifies the token.
func (d *deserializer) parseLiteral(token []byte) storage.Symbol {
	store := d.store
	var mantissa, devisor uint64
	negative := token[0] == '-'
	i := 0
	if negative {
		i = 1
	}
	// a number starts with a digit after the optional sign
	isNumber := i < len(token) && token[i] >= '0' && token[i] <= '9'
	for ; i < len(token); i++ {
		devisor *= 10
		c := token[i]
		if c >= '0' && c <= '9' {
			mantissa = mantissa*10 + uint64(c-'0')
		} else if c == '.' {
			if devisor > 0 {
				isNumber = false
				break
			}
			devisor = 1
		} else {
			isNumber = false
			break
		}
	}
	if isNumber && devisor != 1 {
		if devisor > 0 {
			value := float64(mantissa) / float64(devisor)
			if negative {
				value = -value
			}
			return store.CreateFromFloat(value)
		}
		if negative {
			return store.CreateFromInteger(-int64(mantissa))
		}
		return store.CreateFromNatural(mantissa)
	}
	return store.CreateFromText(string(token))
}

// nextSymbol queues the symbol, unless an unnest pair is pending, in
// which case it completes that triple.
func (d *deserializer) nextSymbol(f *frame, sym storage.Symbol) error {
	if f.unnestEntity == ontology.VoidSymbol {
		f.queue = append(f.queue, sym)
		return nil
	}
	if !d.store.Link(ontology.Triple{f.unnestEntity, f.unnestAttribute, sym}) {
		return d.raise("Triple defined twice via unnesting")
	}
	f.unnestEntity = ontology.VoidSymbol
	return nil
}

// separate closes one clause. A single token with a semicolon declares
// the group entity; otherwise the clause entity is the declared one,
// the first token of a long clause, or a fresh anonymous symbol, and
// the remaining tokens are attribute and values.
func (d *deserializer) separate(semicolon bool) error {
	if err := d.parseToken(false); err != nil {
		return err
	}
	store := d.store
	cur := d.current()
	parent := d.parent()

	if len(cur.queue) == 0 {
		if semicolon {
			return d.raise("Pointless semicolon")
		}
		return nil
	}

	if semicolon && len(cur.queue) == 1 {
		token := cur.queue[0]
		cur.queue = nil
		if cur.entity == ontology.VoidSymbol {
			cur.entity = token
			cur.lastEntity = token
			return d.nextSymbol(parent, token)
		}
		if !store.Link(ontology.Triple{cur.entity, token, cur.entity}) {
			return d.raise("Triple defined twice via self reference")
		}
		return nil
	}

	entity := cur.entity
	if entity == ontology.VoidSymbol {
		if len(cur.queue) >= 3 {
			entity = cur.queue[0]
			cur.queue = cur.queue[1:]
		} else {
			entity = store.Create()
			store.Link(ontology.Triple{d.pkg, ontology.HoldsSymbol, entity})
		}
		if err := d.nextSymbol(parent, entity); err != nil {
			return err
		}
	}
	cur.lastEntity = entity

	attribute := cur.queue[0]
	values := cur.queue[1:]
	cur.queue = nil
	if semicolon {
		parent.unnestEntity = ontology.VoidSymbol
	} else {
		parent.unnestEntity = entity
	}
	parent.unnestAttribute = attribute

	for _, v := range values {
		if !store.Link(ontology.Triple{entity, attribute, v}) {
			return d.raise("Triple defined twice")
		}
	}
	return nil
}
