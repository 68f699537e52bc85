package classfile

import (
	"encoding/binary"
	"fmt"
)

// operandLen holds the fixed operand byte count for each opcode, excluding
// the opcode byte itself. Variable-length instructions (tableswitch,
// lookupswitch, wide) are marked -1 and handled in instrLen.
var operandLen = [256]int8{
	0x10: 1, // bipush
	0x11: 2, // sipush
	0x12: 1, // ldc
	0x13: 2, // ldc_w
	0x14: 2, // ldc2_w
	0x15: 1, 0x16: 1, 0x17: 1, 0x18: 1, 0x19: 1, // iload..aload
	0x36: 1, 0x37: 1, 0x38: 1, 0x39: 1, 0x3a: 1, // istore..astore
	0x84: 2, // iinc
	// conditional and unconditional branches
	0x99: 2, 0x9a: 2, 0x9b: 2, 0x9c: 2, 0x9d: 2, 0x9e: 2,
	0x9f: 2, 0xa0: 2, 0xa1: 2, 0xa2: 2, 0xa3: 2, 0xa4: 2,
	0xa5: 2, 0xa6: 2, 0xa7: 2, 0xa8: 2, // goto, jsr
	0xa9: 1,  // ret
	0xaa: -1, // tableswitch
	0xab: -1, // lookupswitch
	0xb2: 2, 0xb3: 2, 0xb4: 2, 0xb5: 2, // get/putstatic, get/putfield
	0xb6: 2, 0xb7: 2, 0xb8: 2, // invokevirtual/special/static
	0xb9: 4, // invokeinterface (index + count + zero)
	0xba: 4, // invokedynamic (index + two zero bytes)
	0xbb: 2, // new
	0xbc: 1, // newarray
	0xbd: 2, // anewarray
	0xc0: 2, // checkcast
	0xc1: 2, // instanceof
	0xc4: -1, // wide
	0xc5: 3, // multianewarray
	0xc6: 2, 0xc7: 2, // ifnull, ifnonnull
	0xc8: 4, // goto_w
	0xc9: 4, // jsr_w
}

// instrLen returns the total byte length of the instruction at pc, including
// the opcode byte.
func instrLen(code []byte, pc int) (int, error) {
	op := code[pc]
	switch op {
	case 0xaa: // tableswitch: pad to 4-byte boundary, default, low, high, jumps
		base := pc + 1 + pad4(pc+1)
		if base+12 > len(code) {
			return 0, fmt.Errorf("truncated tableswitch at pc %d", pc)
		}
		low := int32(binary.BigEndian.Uint32(code[base+4:]))
		high := int32(binary.BigEndian.Uint32(code[base+8:]))
		if high < low {
			return 0, fmt.Errorf("malformed tableswitch at pc %d", pc)
		}
		return base + 12 + 4*(int(high)-int(low)+1) - pc, nil
	case 0xab: // lookupswitch: pad, default, npairs, pairs
		base := pc + 1 + pad4(pc+1)
		if base+8 > len(code) {
			return 0, fmt.Errorf("truncated lookupswitch at pc %d", pc)
		}
		npairs := int32(binary.BigEndian.Uint32(code[base+4:]))
		if npairs < 0 {
			return 0, fmt.Errorf("malformed lookupswitch at pc %d", pc)
		}
		return base + 8 + 8*int(npairs) - pc, nil
	case 0xc4: // wide: modified opcode + 2-byte index, plus 2-byte const for iinc
		if pc+1 >= len(code) {
			return 0, fmt.Errorf("truncated wide at pc %d", pc)
		}
		if code[pc+1] == 0x84 {
			return 6, nil
		}
		return 4, nil
	}
	n := operandLen[op]
	if pc+1+int(n) > len(code) {
		return 0, fmt.Errorf("truncated instruction %#x at pc %d", op, pc)
	}
	return 1 + int(n), nil
}

// pad4 returns the padding needed to align offset to the next 4-byte
// boundary.
func pad4(offset int) int {
	return (4 - offset%4) % 4
}
