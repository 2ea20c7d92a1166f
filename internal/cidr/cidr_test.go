// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package cidr

import "testing"

func TestMask(t *testing.T) {
	t.Parallel()
	tests := []struct {
		bits uint8
		want uint32
	}{
		{0, 0x00000000},
		{1, 0x80000000},
		{8, 0xff000000},
		{16, 0xffff0000},
		{24, 0xffffff00},
		{31, 0xfffffffe},
		{32, 0xffffffff},
	}
	for _, tc := range tests {
		if got := Mask(tc.bits); got != tc.want {
			t.Errorf("Mask(%d) = %#08x, want %#08x", tc.bits, got, tc.want)
		}
	}
}

func TestBitAndTop(t *testing.T) {
	t.Parallel()
	addr := uint32(0x0a010203) // 10.1.2.3

	if got := Bit(addr, 0); got != 0 {
		t.Errorf("Bit(10.1.2.3, 0) = %d, want 0", got)
	}
	if got := Bit(addr, 4); got != 1 {
		t.Errorf("Bit(10.1.2.3, 4) = %d, want 1", got)
	}
	if got := Bit(addr, 31); got != 1 {
		t.Errorf("Bit(10.1.2.3, 31) = %d, want 1", got)
	}
	if got := Top(addr, 8); got != 10 {
		t.Errorf("Top(10.1.2.3, 8) = %d, want 10", got)
	}
	if got := Top(addr, 0); got != 0 {
		t.Errorf("Top(addr, 0) = %d, want 0", got)
	}
}

func TestCovers(t *testing.T) {
	t.Parallel()
	if !Covers(0x0a000000, 8, 0x0a010203) {
		t.Error("10.0.0.0/8 must cover 10.1.2.3")
	}
	if Covers(0x0a000000, 8, 0x0b000000) {
		t.Error("10.0.0.0/8 must not cover 11.0.0.0")
	}
	if !Covers(0, 0, 0xdeadbeef) {
		t.Error("the default route must cover everything")
	}
}

func TestCommonLen(t *testing.T) {
	t.Parallel()
	if got := CommonLen(0x0a000000, 0x0a010000, 32); got != 15 {
		t.Errorf("CommonLen(10.0.0.0, 10.1.0.0) = %d, want 15", got)
	}
	if got := CommonLen(0x0a000000, 0x0a010000, 8); got != 8 {
		t.Errorf("CommonLen capped = %d, want 8", got)
	}
	if got := CommonLen(0x80000000, 0, 32); got != 0 {
		t.Errorf("CommonLen differing top bit = %d, want 0", got)
	}
	if got := CommonLen(0x0a010203, 0x0a010203, 24); got != 24 {
		t.Errorf("CommonLen equal, capped = %d, want 24", got)
	}
	if got := CommonLen(0x0a010203, 0x0a010203, 32); got != 32 {
		t.Errorf("CommonLen equal = %d, want 32", got)
	}
	if got := CommonLen(0x0a010203, 0x0a010202, 32); got != 31 {
		t.Errorf("CommonLen last bit = %d, want 31", got)
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()
	tests := []struct {
		aAddr uint32
		aBits uint8
		bAddr uint32
		bBits uint8
		want  int
	}{
		{0x0a000000, 8, 0x0a000000, 8, 0},
		{0x0a000000, 8, 0x0a000000, 16, -1},
		{0x0a010000, 16, 0x0a000000, 24, 1},
		{0, 0, 0x0a000000, 8, -1},
	}
	for _, tc := range tests {
		if got := Compare(tc.aAddr, tc.aBits, tc.bAddr, tc.bBits); got != tc.want {
			t.Errorf("Compare(%#08x/%d, %#08x/%d) = %d, want %d", tc.aAddr, tc.aBits, tc.bAddr, tc.bBits, got, tc.want)
		}
	}
}
