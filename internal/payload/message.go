package payload

import (
	"errors"
	"fmt"
)

// MaxAccounts is the most distinct accounts a message can reference; compiled
// instructions address them with one byte.
const MaxAccounts = 256

var (
	errShortMessage    = errors.New("message: truncated")
	ErrTooManyAccounts = errors.New("message: too many accounts")
)

// Message is the unsigned body of a transaction: a fee payer, the freshness
// token it is bound to, and an ordered instruction list.
type Message struct {
	Payer        Identity
	Recent       Hash
	Instructions []Instruction
}

// NewMessage returns a message paid by payer with no token bound yet.
func NewMessage(payer Identity, ixs ...Instruction) Message {
	m := Message{Payer: payer}
	for _, ix := range ixs {
		m.Instructions = append(m.Instructions, ix.clone())
	}
	return m
}

// WithRecent returns a deep copy of m bound to token hash h.
func (m Message) WithRecent(h Hash) Message {
	out := Message{Payer: m.Payer, Recent: h, Instructions: make([]Instruction, len(m.Instructions))}
	for i, ix := range m.Instructions {
		out.Instructions[i] = ix.clone()
	}
	return out
}

// accountKeys is the compiled account table: writable signers (payer first),
// readonly signers, writable non-signers, readonly non-signers, each group in
// order of first appearance.
type accountKeys struct {
	keys       []Identity
	signed     int
	roSigned   int
	roUnsigned int
}

func (a accountKeys) index(k Identity) int {
	for i, key := range a.keys {
		if key == k {
			return i
		}
	}
	return -1
}

func (m Message) accounts() accountKeys {
	type flags struct{ signer, writable bool }
	var order []Identity
	seen := map[Identity]*flags{}
	add := func(k Identity, signer, writable bool) {
		f, ok := seen[k]
		if !ok {
			f = &flags{}
			seen[k] = f
			order = append(order, k)
		}
		f.signer = f.signer || signer
		f.writable = f.writable || writable
	}
	add(m.Payer, true, true)
	for _, ix := range m.Instructions {
		add(ix.Program, false, false)
		for _, a := range ix.Accounts {
			add(a.Key, a.Signer, a.Writable)
		}
	}
	var groups [4][]Identity
	for _, k := range order {
		f := seen[k]
		g := 0
		switch {
		case f.signer && !f.writable:
			g = 1
		case !f.signer && f.writable:
			g = 2
		case !f.signer:
			g = 3
		}
		groups[g] = append(groups[g], k)
	}
	out := accountKeys{
		signed:     len(groups[0]) + len(groups[1]),
		roSigned:   len(groups[1]),
		roUnsigned: len(groups[3]),
	}
	for _, g := range groups {
		out.keys = append(out.keys, g...)
	}
	return out
}

// Signers returns the identities that must sign, in signature order.
func (m Message) Signers() []Identity {
	a := m.accounts()
	return a.keys[:a.signed]
}

// Bytes is the legacy compiled wire form that signatures cover: a three-byte
// header, the account table, the recent hash, then instructions whose program
// and accounts are indices into the table.
func (m Message) Bytes() ([]byte, error) {
	a := m.accounts()
	if len(a.keys) > MaxAccounts {
		return nil, fmt.Errorf("%w: %d", ErrTooManyAccounts, len(a.keys))
	}
	buf := make([]byte, 0, 3+3+len(a.keys)*IdentitySize+HashSize+64*len(m.Instructions))
	buf = append(buf, byte(a.signed), byte(a.roSigned), byte(a.roUnsigned))
	buf = appendShortVec(buf, len(a.keys))
	for _, k := range a.keys {
		buf = append(buf, k[:]...)
	}
	buf = append(buf, m.Recent[:]...)
	buf = appendShortVec(buf, len(m.Instructions))
	for _, ix := range m.Instructions {
		buf = append(buf, byte(a.index(ix.Program)))
		buf = appendShortVec(buf, len(ix.Accounts))
		for _, acc := range ix.Accounts {
			buf = append(buf, byte(a.index(acc.Key)))
		}
		buf = appendShortVec(buf, len(ix.Data))
		buf = append(buf, ix.Data...)
	}
	return buf, nil
}

// decodeMessage parses Bytes output. It also returns how many signatures the
// header requires.
func decodeMessage(b []byte) (Message, int, error) {
	var m Message
	if len(b) < 3 {
		return m, 0, errShortMessage
	}
	signed, roSigned, roUnsigned := int(b[0]), int(b[1]), int(b[2])
	b = b[3:]
	nkeys, n, err := readShortVec(b)
	if err != nil {
		return m, 0, err
	}
	b = b[n:]
	if nkeys == 0 || signed == 0 || signed > nkeys || roSigned >= signed || roUnsigned > nkeys-signed {
		return m, 0, fmt.Errorf("message: bad header %d/%d/%d for %d accounts", signed, roSigned, roUnsigned, nkeys)
	}
	if len(b) < nkeys*IdentitySize+HashSize {
		return m, 0, errShortMessage
	}
	keys := make([]Identity, nkeys)
	for i := range keys {
		copy(keys[i][:], b[:IdentitySize])
		b = b[IdentitySize:]
	}
	copy(m.Recent[:], b[:HashSize])
	b = b[HashSize:]
	m.Payer = keys[0]

	meta := func(i int) AccountMeta {
		w := i < signed-roSigned || (i >= signed && i < nkeys-roUnsigned)
		return AccountMeta{Key: keys[i], Signer: i < signed, Writable: w}
	}
	nix, n, err := readShortVec(b)
	if err != nil {
		return m, 0, err
	}
	b = b[n:]
	for i := 0; i < nix; i++ {
		if len(b) < 1 {
			return m, 0, errShortMessage
		}
		prog := int(b[0])
		if prog >= nkeys {
			return m, 0, fmt.Errorf("message: program index %d out of range", prog)
		}
		ix := Instruction{Program: keys[prog]}
		nacc, n, err := readShortVec(b[1:])
		if err != nil {
			return m, 0, err
		}
		b = b[1+n:]
		if len(b) < nacc {
			return m, 0, errShortMessage
		}
		for _, idx := range b[:nacc] {
			if int(idx) >= nkeys {
				return m, 0, fmt.Errorf("message: account index %d out of range", idx)
			}
			ix.Accounts = append(ix.Accounts, meta(int(idx)))
		}
		b = b[nacc:]
		ndata, n, err := readShortVec(b)
		if err != nil {
			return m, 0, err
		}
		b = b[n:]
		if len(b) < ndata {
			return m, 0, errShortMessage
		}
		ix.Data = append([]byte(nil), b[:ndata]...)
		b = b[ndata:]
		m.Instructions = append(m.Instructions, ix)
	}
	if len(b) != 0 {
		return m, 0, fmt.Errorf("message: %d trailing bytes", len(b))
	}
	return m, signed, nil
}
