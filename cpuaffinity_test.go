package rodvision

import (
	"reflect"
	"testing"
)

func TestCPUCoreMask(t *testing.T) {

	tests := []struct {
		cores    []int
		expected uintptr
	}{
		{[]int{0, 1, 2, 3}, RPi5AllCores},
		{[]int{1, 2, 3}, RPi5CaptureCores},
		{[]int{4, 5, 6, 7}, RK3588FastCores},
		{[]int{}, 0},
		{[]int{-1, 2}, 0b100},
	}

	for _, tc := range tests {
		if got := CPUCoreMask(tc.cores); got != tc.expected {
			t.Errorf("cores %v: expected mask %b, got %b", tc.cores, tc.expected, got)
		}
	}

	if got := MaskCores(RK3588FastCores); !reflect.DeepEqual(got, []int{4, 5, 6, 7}) {
		t.Errorf("expected cores 4-7, got %v", got)
	}
}

func TestBoardMask(t *testing.T) {

	mask, err := BoardMask(" RPi5 ", CaptureCores)

	if err != nil || mask != RPi5CaptureCores {
		t.Errorf("expected rpi5 capture cores, got %b err %v", mask, err)
	}

	if _, err := BoardMask("rk3399", EveryCore); err == nil {
		t.Errorf("expected error for unknown board")
	}
}
