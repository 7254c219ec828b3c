package config

import (
	"fmt"

	"imagesim/imageprocessor"
)

// Settings is the resolved runtime configuration of the engine and its host.
type Settings struct {
	ModelPath       string
	ModelConfig     string
	InputSize       int
	EmbeddingDim    int
	ChannelOrder    string
	ChannelMean     []float64
	ChannelStd      []float64
	AcceptedFormats []string
	MaxPixels       int
	CacheSize       int
	Database        string
	LogFile         string
	Debug           bool
	// Workers is the indexing pool size; zero lets the host pick one.
	Workers int
}

// DefaultSettings matches a ResNet50 ONNX export with caffe-style inputs.
func DefaultSettings() Settings {
	pre := imageprocessor.DefaultConfig()
	return Settings{
		ModelPath:       "models/resnet50.onnx",
		InputSize:       pre.InputSize,
		EmbeddingDim:    2048,
		ChannelOrder:    pre.ChannelOrder,
		ChannelMean:     []float64{float64(pre.Mean[0]), float64(pre.Mean[1]), float64(pre.Mean[2])},
		ChannelStd:      []float64{1, 1, 1},
		AcceptedFormats: []string{"png", "jpeg"},
		MaxPixels:       int(pre.MaxPixels),
	}
}

// Settings resolves every known key against DefaultSettings.
func (c *Config) Settings() Settings {
	d := DefaultSettings()
	return Settings{
		ModelPath:       c.GetStringOrDefault("model_path", d.ModelPath),
		ModelConfig:     c.GetStringOrDefault("model_config", d.ModelConfig),
		InputSize:       c.GetIntOrDefault("input_size", d.InputSize),
		EmbeddingDim:    c.GetIntOrDefault("embedding_dim", d.EmbeddingDim),
		ChannelOrder:    c.GetStringOrDefault("channel_order", d.ChannelOrder),
		ChannelMean:     c.GetFloatListOrDefault("channel_mean", d.ChannelMean),
		ChannelStd:      c.GetFloatListOrDefault("channel_std", d.ChannelStd),
		AcceptedFormats: c.GetStringListOrDefault("accepted_formats", d.AcceptedFormats),
		MaxPixels:       c.GetIntOrDefault("max_pixels", d.MaxPixels),
		CacheSize:       c.GetIntOrDefault("cache_size", d.CacheSize),
		Database:        c.GetStringOrDefault("database", d.Database),
		LogFile:         c.GetStringOrDefault("log_file", d.LogFile),
		Debug:           c.GetBoolOrDefault("debug", d.Debug),
		Workers:         c.GetIntOrDefault("workers", d.Workers),
	}
}

// PreprocessorConfig converts the image contract into an imageprocessor.Config.
func (s Settings) PreprocessorConfig() (imageprocessor.Config, error) {
	cfg := imageprocessor.Config{
		InputSize:    s.InputSize,
		ChannelOrder: s.ChannelOrder,
		MaxPixels:    int64(s.MaxPixels),
	}
	if len(s.ChannelMean) != 3 {
		return cfg, fmt.Errorf("channel_mean needs 3 values, got %d", len(s.ChannelMean))
	}
	if len(s.ChannelStd) != 3 {
		return cfg, fmt.Errorf("channel_std needs 3 values, got %d", len(s.ChannelStd))
	}
	for i := 0; i < 3; i++ {
		cfg.Mean[i] = float32(s.ChannelMean[i])
		cfg.Std[i] = float32(s.ChannelStd[i])
	}
	for _, name := range s.AcceptedFormats {
		format := imageprocessor.ParseFormat(name)
		if format == imageprocessor.FormatUnknown {
			return cfg, fmt.Errorf("unknown image format %q", name)
		}
		cfg.AcceptedFormats = append(cfg.AcceptedFormats, format)
	}
	return cfg, cfg.Validate()
}
