package config_test

import (
	"errors"
	"testing"

	"github.com/voxhollow/sibyl/internal/config"
	"github.com/voxhollow/sibyl/pkg/provider/llm"
	llmmock "github.com/voxhollow/sibyl/pkg/provider/llm/mock"
	"github.com/voxhollow/sibyl/pkg/provider/vad"
	"github.com/voxhollow/sibyl/pkg/provider/vad/energy"
)

func TestRegistry_CreateUsesRegisteredFactory(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	var got config.ModelConfig
	reg.RegisterModel(config.ModelMock, func(cfg config.ModelConfig) (llm.Provider, error) {
		got = cfg
		return &llmmock.Provider{}, nil
	})

	p, err := reg.CreateModel(config.ModelConfig{Kind: config.ModelMock, Name: "tiny"})
	if err != nil {
		t.Fatalf("CreateModel: %v", err)
	}
	if p == nil {
		t.Fatal("nil provider")
	}
	if got.Name != "tiny" {
		t.Errorf("factory saw Name = %q, want tiny", got.Name)
	}
}

func TestRegistry_UnregisteredKind(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	_, err := reg.CreateVAD(config.VADConfig{Kind: config.VADEnergy})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_OverwriteKeepsLatest(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterVAD(config.VADEnergy, func(config.VADConfig) (vad.Engine, error) {
		t.Fatal("stale factory invoked")
		return nil, nil
	})
	reg.RegisterVAD(config.VADEnergy, func(config.VADConfig) (vad.Engine, error) {
		return energy.New(), nil
	})

	eng, err := reg.CreateVAD(config.VADConfig{Kind: config.VADEnergy})
	if err != nil {
		t.Fatalf("CreateVAD: %v", err)
	}
	if eng == nil {
		t.Fatal("nil engine")
	}
}
