/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"
)

// Config is the process-wide configuration, loaded once at daemon startup
// and thereafter accessed exclusively through GCO.Get(). Mirrors the
// teacher's *Str + parsed-time.Duration convention so the on-disk/JSON
// representation stays human-editable while hot paths read pre-parsed
// durations.
type Config struct {
	Confdir string      `json:"confdir"`
	Log     LogConf     `json:"log"`
	Timeout TimeoutConf `json:"timeout"`
	Ssync   SsyncConf   `json:"ssync"`
	FS      FSConf      `json:"fspaths"`
	Net     NetConf     `json:"net"`
}

// FSConf lists the mountpaths this target's disk subsystem serves, the
// flat analog of the teacher's fspaths config section.
type FSConf struct {
	Paths []string `json:"paths"`
}

// NetConf is the listener address for the SSYNC HTTP front-end.
type NetConf struct {
	Listen string `json:"listen"`
}

type LogConf struct {
	Dir   string `json:"dir"`
	Level string `json:"level"`
}

type TimeoutConf struct {
	CplaneOperationStr string        `json:"cplane_operation"`
	CplaneOperation    time.Duration `json:"-"`
}

// SsyncConf carries every tunable spec §4-§5 calls "configuration": the
// bounded process-wide semaphore, the per-device concurrency limit, the
// per-partition lock timeout, the per-read client timeout, and the
// failure-ratio abort policy.
type SsyncConf struct {
	ConcurrencyStr           string        `json:"replication_concurrency"`
	Concurrency              int           `json:"-"`
	ConcurrencyPerDeviceStr  string        `json:"replication_concurrency_per_device"`
	ConcurrencyPerDevice     int           `json:"-"`
	LockTimeoutStr           string        `json:"replication_lock_timeout"`
	LockTimeout              time.Duration `json:"-"`
	ClientTimeoutStr         string        `json:"client_timeout"`
	ClientTimeout            time.Duration `json:"-"`
	FailureThreshold         int           `json:"failure_threshold"`
	FailureRatio             float64       `json:"failure_ratio"`
	MountCheck               bool          `json:"mount_check"`
	LockIdleStr              string        `json:"replication_lock_idle"`
	LockIdle                 time.Duration `json:"-"`
}

// DefaultConfig returns a Config populated with the defaults used throughout
// the test suite and, absent a config file, by cmd/ssyncd.
func DefaultConfig() *Config {
	c := &Config{
		Log: LogConf{Dir: "/var/log/ssyncd", Level: "info"},
		Net: NetConf{Listen: ":51090"},
		Timeout: TimeoutConf{
			CplaneOperationStr: "2s",
		},
		Ssync: SsyncConf{
			ConcurrencyStr:          "4",
			ConcurrencyPerDeviceStr: "1",
			LockTimeoutStr:          "15s",
			ClientTimeoutStr:        "60s",
			FailureThreshold:        100,
			FailureRatio:            1.0,
			MountCheck:              true,
			LockIdleStr:             "5m",
		},
	}
	AssertNoErr(c.resolveDurations())
	return c
}

func (c *Config) resolveDurations() (err error) {
	if c.Timeout.CplaneOperation, err = time.ParseDuration(orDefault(c.Timeout.CplaneOperationStr, "2s")); err != nil {
		return err
	}
	if c.Ssync.LockTimeout, err = time.ParseDuration(orDefault(c.Ssync.LockTimeoutStr, "15s")); err != nil {
		return err
	}
	if c.Ssync.ClientTimeout, err = time.ParseDuration(orDefault(c.Ssync.ClientTimeoutStr, "60s")); err != nil {
		return err
	}
	if c.Ssync.LockIdle, err = time.ParseDuration(orDefault(c.Ssync.LockIdleStr, "5m")); err != nil {
		return err
	}
	if _, err = fmt.Sscanf(orDefault(c.Ssync.ConcurrencyStr, "4"), "%d", &c.Ssync.Concurrency); err != nil {
		return err
	}
	if _, err = fmt.Sscanf(orDefault(c.Ssync.ConcurrencyPerDeviceStr, "1"), "%d", &c.Ssync.ConcurrencyPerDevice); err != nil {
		return err
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// LoadConfig reads JSON configuration from path and resolves its duration
// fields; callers typically follow with GCO.CommitUpdate.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c := DefaultConfig()
	if err := NewDecoder(f).Decode(c); err != nil {
		return nil, err
	}
	if err := c.resolveDurations(); err != nil {
		return nil, err
	}
	return c, nil
}

//
// CONFIG OWNER
//

type ConfigOwner interface {
	Get() *Config
	BeginUpdate() *Config
	CommitUpdate(config *Config)
	DiscardUpdate()
}

type globalConfigOwner struct {
	mtx sync.Mutex
	c   unsafe.Pointer
}

// GCO is the global config owner: config is loaded once and thereafter
// accessed through atomic pointer loads, exactly as in the teacher's
// cmn.GCO (reb/global.go, reb/bcast.go read it on every hot path).
var GCO = &globalConfigOwner{}

func init() {
	c := DefaultConfig()
	atomic.StorePointer(&GCO.c, unsafe.Pointer(c))
}

func (gco *globalConfigOwner) Get() *Config {
	return (*Config)(atomic.LoadPointer(&gco.c))
}

func (gco *globalConfigOwner) BeginUpdate() *Config {
	gco.mtx.Lock()
	clone := *gco.Get()
	return &clone
}

func (gco *globalConfigOwner) CommitUpdate(c *Config) {
	atomic.StorePointer(&gco.c, unsafe.Pointer(c))
	gco.mtx.Unlock()
}

func (gco *globalConfigOwner) DiscardUpdate() {
	gco.mtx.Unlock()
}
