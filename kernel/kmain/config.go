package kmain

import (
	"encoding/json"
	"os"

	"govm/kernel"
)

// Swap backends supported by Boot.
const (
	SwapMemory = "memory"
	SwapFile   = "file"
	SwapBolt   = "bolt"
)

var (
	errConfigOpen   = &kernel.Error{Module: "kmain", Message: "unable to open configuration file"}
	errConfigDecode = &kernel.Error{Module: "kmain", Message: "unable to decode configuration"}
	errNoFrames     = &kernel.Error{Module: "kmain", Message: "frame count must be greater than zero"}
	errSwapBackend  = &kernel.Error{Module: "kmain", Message: "unknown swap backend"}
	errSwapSize     = &kernel.Error{Module: "kmain", Message: "swap device must hold at least one slot"}
	errSwapImage    = &kernel.Error{Module: "kmain", Message: "swap backend requires an image path"}
)

// Config describes the machine booted by Boot.
type Config struct {
	// Frames is the number of physical frames available to user pages.
	Frames uint32 `json:"frames"`

	// FirstFrame is the number of the first physical frame of the pool.
	FirstFrame uint32 `json:"first_frame"`

	// SwapBackend selects the swap device: memory, file or bolt.
	SwapBackend string `json:"swap_backend"`

	// SwapSectors is the size of the swap device in sectors.
	SwapSectors uint32 `json:"swap_sectors"`

	// SwapImage is the path of the swap image for the file and bolt
	// backends.
	SwapImage string `json:"swap_image"`

	// LogPrefix tags the boot messages.
	LogPrefix string `json:"log_prefix"`
}

// DefaultConfig returns a configuration with 64 frames and a 1 MiB
// in-memory swap device.
func DefaultConfig() Config {
	return Config{
		Frames:      64,
		FirstFrame:  0x100,
		SwapBackend: SwapMemory,
		SwapSectors: 2048,
		LogPrefix:   "[vm] ",
	}
}

// LoadConfig reads a JSON configuration from path. Fields missing from the
// file keep their DefaultConfig values.
func LoadConfig(path string) (Config, *kernel.Error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg, kernel.Wrap(errConfigOpen, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err = dec.Decode(&cfg); err != nil {
		return cfg, kernel.Wrap(errConfigDecode, err)
	}

	return cfg, cfg.Validate()
}

// Validate checks that the configuration describes a bootable machine.
func (cfg Config) Validate() *kernel.Error {
	if cfg.Frames == 0 {
		return errNoFrames
	}

	switch cfg.SwapBackend {
	case SwapMemory:
	case SwapFile, SwapBolt:
		if cfg.SwapImage == "" {
			return errSwapImage
		}
	default:
		return errSwapBackend
	}

	if cfg.SwapSectors < swapSectorsPerSlot {
		return errSwapSize
	}
	return nil
}
