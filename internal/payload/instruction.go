package payload

import "encoding/binary"

// AccountMeta references an account touched by an instruction.
type AccountMeta struct {
	Key      Identity
	Signer   bool
	Writable bool
}

// Instruction is one program invocation inside a message.
type Instruction struct {
	Program  Identity
	Accounts []AccountMeta
	Data     []byte
}

var (
	// SystemProgram owns native transfers: 11111111111111111111111111111111.
	SystemProgram = Identity{}
	// ComputeBudgetProgram owns the fee/priority instructions:
	// ComputeBudget111111111111111111111111111111.
	ComputeBudgetProgram = Identity{
		0x03, 0x06, 0x46, 0x6f, 0xe5, 0x21, 0x17, 0x32,
		0xff, 0xec, 0xad, 0xba, 0x72, 0xc3, 0x9b, 0xe7,
		0xbc, 0x8c, 0xe5, 0xbb, 0xc5, 0xf7, 0x12, 0x6b,
		0x2c, 0x43, 0x9b, 0x3a, 0x40, 0x00, 0x00, 0x00,
	}
)

const (
	computeUnitLimitTag = 2
	computeUnitPriceTag = 3
	transferTag         = 2
)

// SetComputeUnitPrice sets the priority fee in micro-units per compute unit.
func SetComputeUnitPrice(microUnits uint64) Instruction {
	data := make([]byte, 9)
	data[0] = computeUnitPriceTag
	binary.LittleEndian.PutUint64(data[1:], microUnits)
	return Instruction{Program: ComputeBudgetProgram, Data: data}
}

// SetComputeUnitLimit caps the compute units the transaction may consume.
func SetComputeUnitLimit(units uint32) Instruction {
	data := make([]byte, 5)
	data[0] = computeUnitLimitTag
	binary.LittleEndian.PutUint32(data[1:], units)
	return Instruction{Program: ComputeBudgetProgram, Data: data}
}

// Transfer moves amount from one account to another. from must sign.
func Transfer(from, to Identity, amount uint64) Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], transferTag)
	binary.LittleEndian.PutUint64(data[4:], amount)
	return Instruction{
		Program: SystemProgram,
		Accounts: []AccountMeta{
			{Key: from, Signer: true, Writable: true},
			{Key: to, Writable: true},
		},
		Data: data,
	}
}

func (ix Instruction) clone() Instruction {
	out := Instruction{Program: ix.Program}
	if ix.Accounts != nil {
		out.Accounts = append([]AccountMeta(nil), ix.Accounts...)
	}
	if ix.Data != nil {
		out.Data = append([]byte(nil), ix.Data...)
	}
	return out
}
