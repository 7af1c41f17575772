package vm

import (
	"strings"
	"testing"
)

func TestOpcodeInfo(t *testing.T) {
	tests := []struct {
		op       Opcode
		name     string
		operands int
	}{
		{OpDrop, "DROP", 0},
		{OpAbort, "ABORT", 0},
		{OpAdd, "ADD", 0},
		{OpShiftRightUnsigned, "SHIFT_RIGHT_UNSIGNED", 0},
		{OpLdTwo, "LD_TWO", 0},
		{OpLdValue, "LD_VALUE", 8},
		{OpGetProperty, "GET_PROPERTY", 8},
		{OpCall, "CALL", 8},
		{OpRet, "RET", 0},
	}
	for _, tt := range tests {
		if got := tt.op.Name(); got != tt.name {
			t.Errorf("%#x Name: got %q, want %q", byte(tt.op), got, tt.name)
		}
		if got := tt.op.OperandBytes(); got != tt.operands {
			t.Errorf("%s OperandBytes: got %d, want %d", tt.name, got, tt.operands)
		}
		if got := tt.op.Width(); got != 1+tt.operands {
			t.Errorf("%s Width: got %d, want %d", tt.name, got, 1+tt.operands)
		}
	}
}

func TestOpcodeTable_Unique(t *testing.T) {
	names := make(map[string]Opcode)
	for op, info := range opcodeTable {
		if prev, dup := names[info.Name]; dup {
			t.Errorf("mnemonic %s used by %#x and %#x", info.Name, byte(prev), byte(op))
		}
		names[info.Name] = op
	}
}

func TestOpEnd_IsReserved(t *testing.T) {
	if OpEnd.Valid() {
		t.Error("the terminator must not be a valid opcode")
	}
	if _, ok := opcodeTable[OpEnd]; ok {
		t.Error("the terminator must not appear in the opcode table")
	}
	if got := Opcode(0xEE).Name(); got != "UNKNOWN_EE" {
		t.Errorf("unknown opcode name: got %q", got)
	}
}

func TestBytecodeBuilder(t *testing.T) {
	b := NewBytecodeBuilder()
	b.Emit(OpLdOne)
	b.EmitOperand(OpLdValue, 0x0102030405060708)
	b.EmitEnd()

	want := []byte{byte(OpLdOne), byte(OpLdValue), 8, 7, 6, 5, 4, 3, 2, 1, byte(OpEnd)}
	got := b.Bytes()
	if len(got) != len(want) {
		t.Fatalf("length: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d: got %#x, want %#x", i, got[i], want[i])
		}
	}

	r := NewBytecodeReader(got)
	if op := r.ReadOpcode(); op != OpLdOne {
		t.Errorf("first op: %s", op)
	}
	if op := r.ReadOpcode(); op != OpLdValue {
		t.Errorf("second op: %s", op)
	}
	if v := r.ReadUint64(); v != 0x0102030405060708 {
		t.Errorf("operand: %#x", v)
	}
	if r.Remaining() != 1 {
		t.Errorf("remaining: %d", r.Remaining())
	}
}

func TestBytecodeBuilder_OperandMismatchPanics(t *testing.T) {
	b := NewBytecodeBuilder()
	defer func() {
		if recover() == nil {
			t.Error("Emit of an operand-carrying opcode should panic")
		}
	}()
	b.Emit(OpLdValue)
}

func TestDisassemble(t *testing.T) {
	b := NewBytecodeBuilder()
	b.EmitOperand(OpLdValue, 9)
	b.Emit(OpRet)
	b.EmitEnd()
	b.Emit(OpDup) // past the terminator; never rendered

	out := Disassemble(b.Bytes())
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), out)
	}
	wants := []string{
		"0000 | LD_VALUE",
		"0009 | RET",
		"0010 | END",
	}
	for i, w := range wants {
		if !strings.HasPrefix(lines[i], w) {
			t.Errorf("line %d: got %q, want prefix %q", i, lines[i], w)
		}
	}
	if !strings.HasSuffix(lines[0], "60 09 00 00 00 00 00 00 00") {
		t.Errorf("hex bytes: got %q", lines[0])
	}
}
