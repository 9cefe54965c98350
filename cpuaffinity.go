package rodvision

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"unsafe"
)

const (
	// RPi5AllCores is the affinity mask of the four cortex A76 cores 0-3
	RPi5AllCores = uintptr(0b1111)
	// RPi5CaptureCores leaves core 0 to the kernel and libcamera threads
	RPi5CaptureCores = uintptr(0b1110)

	// RPi4AllCores is the affinity mask of the four cortex A72 cores 0-3
	RPi4AllCores = uintptr(0b1111)
	// RPi4CaptureCores leaves core 0 to the kernel and libcamera threads
	RPi4CaptureCores = uintptr(0b1110)

	// RK3588FastCores is the affinity mask of the cortex A76 cores 4-7
	RK3588FastCores = uintptr(0b11110000)
	// RK3588AllCores is the affinity mask of all eight cores
	RK3588AllCores = uintptr(0b11111111)
)

// CoreSet selects which group of cores of a board to run on
type CoreSet int

const (
	// CaptureCores are the cores best suited to the vision pipeline
	CaptureCores CoreSet = iota
	// EveryCore allows all cores
	EveryCore
)

// boardMasks maps board names to their core masks
var boardMasks = map[string]map[CoreSet]uintptr{
	"rpi4": {
		CaptureCores: RPi4CaptureCores,
		EveryCore:    RPi4AllCores,
	},
	"rpi5": {
		CaptureCores: RPi5CaptureCores,
		EveryCore:    RPi5AllCores,
	},
	"rk3588": {
		CaptureCores: RK3588FastCores,
		EveryCore:    RK3588AllCores,
	},
}

// SetCPUAffinity restricts the calling thread to the cores in mask
func SetCPUAffinity(mask uintptr) error {

	_, _, err := syscall.RawSyscall(syscall.SYS_SCHED_SETAFFINITY, 0,
		unsafe.Sizeof(mask), uintptr(unsafe.Pointer(&mask)))

	if err != 0 {
		return fmt.Errorf("failed to set CPU affinity: %w", err)
	}

	return nil
}

// GetCPUAffinity returns the core mask of the calling thread
func GetCPUAffinity() (uintptr, error) {

	var mask uintptr

	_, _, err := syscall.RawSyscall(syscall.SYS_SCHED_GETAFFINITY, 0,
		unsafe.Sizeof(mask), uintptr(unsafe.Pointer(&mask)))

	if err != 0 {
		return 0, fmt.Errorf("failed to get CPU affinity: %w", err)
	}

	return mask, nil
}

// CPUCoreMask builds a core mask from core numbers, eg: []int{1,2,3}
func CPUCoreMask(cores []int) uintptr {

	var mask uintptr

	for _, core := range cores {
		if core >= 0 && core < int(unsafe.Sizeof(mask)*8) {
			mask |= 1 << core
		}
	}

	return mask
}

// MaskCores lists the core numbers set in mask in ascending order
func MaskCores(mask uintptr) []int {

	var cores []int

	for i := 0; i < int(unsafe.Sizeof(mask)*8); i++ {
		if mask&(1<<i) != 0 {
			cores = append(cores, i)
		}
	}

	sort.Ints(cores)

	return cores
}

// BoardMask returns the core mask for a board name of rpi4|rpi5|rk3588
func BoardMask(board string, set CoreSet) (uintptr, error) {

	board = strings.ToLower(strings.TrimSpace(board))

	if masks, ok := boardMasks[board]; ok {
		if mask, ok := masks[set]; ok {
			return mask, nil
		}
	}

	return 0, fmt.Errorf("unknown board: %s", board)
}

// PinThread locks the calling goroutine to its OS thread and restricts that
// thread to mask.  The returned function undoes both.
func PinThread(mask uintptr) (func(), error) {

	runtime.LockOSThread()

	prev, err := GetCPUAffinity()

	if err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}

	if err := SetCPUAffinity(mask); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}

	return func() {
		_ = SetCPUAffinity(prev)
		runtime.UnlockOSThread()
	}, nil
}
