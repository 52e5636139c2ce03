package recognizer

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Vendor 供应商类型
type Vendor string

const (
	// VendorWhisper OpenAI 兼容的 Whisper 接口
	VendorWhisper Vendor = "whisper"
	// VendorLocal 本地 whisper.cpp 命令
	VendorLocal Vendor = "local"
)

var (
	ErrNilConfig         = errors.New("transcriber config cannot be nil")
	ErrUnsupportedVendor = errors.New("transcriber vendor not supported")
)

// TranscriberConfig selects a vendor and carries its options.
type TranscriberConfig interface {
	GetVendor() Vendor
}

func (opt *WhisperOption) GetVendor() Vendor { return VendorWhisper }

func (opt *LocalASRConfig) GetVendor() Vendor { return VendorLocal }

// Creator builds a transcriber from the vendor's own config type.
type Creator func(TranscriberConfig) (TranscribeService, error)

// typed adapts a constructor taking *C to a Creator.
func typed[C TranscriberConfig](build func(C) (TranscribeService, error)) Creator {
	return func(config TranscriberConfig) (TranscribeService, error) {
		opt, ok := config.(C)
		if !ok {
			return nil, fmt.Errorf("invalid config type %T for %s", config, config.GetVendor())
		}
		return build(opt)
	}
}

type DefaultTranscriberFactory struct {
	mu       sync.RWMutex
	creators map[Vendor]Creator
}

func NewTranscriberFactory() *DefaultTranscriberFactory {
	f := &DefaultTranscriberFactory{creators: make(map[Vendor]Creator)}
	f.RegisterCreator(VendorWhisper, typed(func(opt *WhisperOption) (TranscribeService, error) {
		return NewWhisperASR(*opt)
	}))
	f.RegisterCreator(VendorLocal, typed(func(opt *LocalASRConfig) (TranscribeService, error) {
		return NewLocalASRService(opt)
	}))
	zap.L().Debug("transcriber factory initialized", zap.Any("vendors", f.GetSupportedVendors()))
	return f
}

// RegisterCreator replaces any creator already bound to vendor.
func (f *DefaultTranscriberFactory) RegisterCreator(vendor Vendor, creator Creator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[vendor] = creator
}

func (f *DefaultTranscriberFactory) CreateTranscriber(config TranscriberConfig) (TranscribeService, error) {
	if config == nil {
		return nil, ErrNilConfig
	}
	f.mu.RLock()
	creator, ok := f.creators[config.GetVendor()]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVendor, config.GetVendor())
	}
	return creator(config)
}

// GetSupportedVendors sorted vendor names
func (f *DefaultTranscriberFactory) GetSupportedVendors() []Vendor {
	f.mu.RLock()
	defer f.mu.RUnlock()
	vendors := make([]Vendor, 0, len(f.creators))
	for vendor := range f.creators {
		vendors = append(vendors, vendor)
	}
	slices.Sort(vendors)
	return vendors
}

func (f *DefaultTranscriberFactory) IsVendorSupported(vendor Vendor) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.creators[vendor]
	return ok
}

var (
	globalFactory *DefaultTranscriberFactory
	factoryOnce   sync.Once
)

// GetGlobalFactory 获取全局工厂实例
func GetGlobalFactory() *DefaultTranscriberFactory {
	factoryOnce.Do(func() {
		globalFactory = NewTranscriberFactory()
	})
	return globalFactory
}
