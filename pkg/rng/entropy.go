// Package rng feeds hardware randomness into the kernel entropy pool. The
// pre-kexec environment boots with a nearly empty pool, which stalls TPM
// sessions and any other consumer of /dev/random.
package rng

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	hwRandomCurrentFile   = "/sys/class/misc/hw_random/rng_current"
	hwRandomAvailableFile = "/sys/class/misc/hw_random/rng_available"
	poolSizeFile          = "/proc/sys/kernel/random/poolsize"
	entropyAvailableFile  = "/proc/sys/kernel/random/entropy_avail"
	hwRandomDevice        = "/dev/hwrng"
	randomDevice          = "/dev/random"

	feedInterval = 10 * time.Second
)

// trusted hardware RNGs, in order of preference
var trustedSources = []string{"tpm-rng", "intel-rng", "amd-rng"}

func readSysValue(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// selectTRNG makes sure a trusted hardware RNG backs /dev/hwrng, switching
// the kernel's current source if a trusted one is merely available.
func selectTRNG() error {
	current, err := readSysValue(hwRandomCurrentFile)
	if err != nil {
		return err
	}
	for _, name := range trustedSources {
		if current == name {
			return nil
		}
	}

	available, err := readSysValue(hwRandomAvailableFile)
	if err != nil {
		return err
	}
	for _, name := range trustedSources {
		for _, avail := range strings.Fields(available) {
			if avail == name {
				return os.WriteFile(hwRandomCurrentFile, []byte(name), 0644)
			}
		}
	}
	return errors.New("no trusted hardware RNG available")
}

// Feed tops the kernel entropy pool up from the hardware RNG until an error
// occurs. Run it as a goroutine; reads from /dev/hwrng block when the
// hardware has no randomness to give.
func Feed() error {
	if err := selectTRNG(); err != nil {
		return err
	}

	poolSizeValue, err := readSysValue(poolSizeFile)
	if err != nil {
		return err
	}
	poolSize, err := strconv.ParseUint(poolSizeValue, 10, 32)
	if err != nil {
		return err
	}

	hwRng, err := os.OpenFile(hwRandomDevice, os.O_RDONLY, os.ModeDevice)
	if err != nil {
		return err
	}
	defer hwRng.Close()
	rng, err := os.OpenFile(randomDevice, os.O_APPEND|os.O_WRONLY, os.ModeDevice)
	if err != nil {
		return err
	}
	defer rng.Close()

	buf := make([]byte, poolSize)
	for {
		availValue, err := readSysValue(entropyAvailableFile)
		if err != nil {
			return err
		}
		avail, err := strconv.ParseUint(availValue, 10, 32)
		if err != nil {
			return err
		}

		if avail < poolSize {
			needed := poolSize - avail
			n, err := hwRng.Read(buf[:needed])
			if err != nil {
				return err
			}
			if _, err := rng.Write(buf[:n]); err != nil {
				return err
			}
		}
		time.Sleep(feedInterval)
	}
}
