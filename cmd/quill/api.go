package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/quillcode/quill/pkg/config"
	"github.com/quillcode/quill/pkg/llms"
	"github.com/quillcode/quill/pkg/logger"
	"github.com/quillcode/quill/pkg/protocol"
)

// APICmd inspects and tests configured provider instances.
type APICmd struct {
	Providers APIProvidersCmd `cmd:"" help:"List configured provider instances."`
	Test      APITestCmd      `cmd:"" help:"Construct every enabled provider and report failures."`
}

type APIProvidersCmd struct{}

func (c *APIProvidersCmd) Run() error {
	settings, err := config.New()
	if err != nil {
		return err
	}
	providers := settings.Providers()

	names := make([]string, 0, len(providers.Instances))
	for name := range providers.Instances {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		instance := providers.Instances[name]
		status := "enabled"
		if !instance.IsEnabled() {
			status = "disabled"
		}
		marker := " "
		if name == providers.Default {
			marker = "*"
		}
		fmt.Printf("%s %-16s type=%-10s %s", marker, name, instance.Type, status)
		if instance.BaseURL != "" {
			fmt.Printf("  base_url=%s", instance.BaseURL)
		}
		fmt.Println()
	}
	return nil
}

type APITestCmd struct {
	Live bool `help:"Send a one-token completion to each provider."`
}

func (c *APITestCmd) Run() error {
	settings, err := config.New()
	if err != nil {
		return err
	}
	providers := settings.Providers()
	registry := llms.NewRegistry(logger.Default())
	defer registry.CloseAll()

	names := make([]string, 0, len(providers.Instances))
	for name := range providers.Instances {
		names = append(names, name)
	}
	sort.Strings(names)

	failures := 0
	for _, name := range names {
		instance := providers.Instances[name]
		if !instance.IsEnabled() {
			fmt.Printf("%-16s skipped (disabled)\n", name)
			continue
		}

		provider, err := registry.Create(name, instance)
		if err != nil {
			fmt.Printf("%-16s FAIL: %v\n", name, err)
			failures++
			continue
		}

		if !c.Live {
			fmt.Printf("%-16s ok\n", name)
			continue
		}
		if err := livePing(settings, name, provider); err != nil {
			fmt.Printf("%-16s FAIL: %v\n", name, err)
			failures++
			continue
		}
		fmt.Printf("%-16s ok (live)\n", name)
	}

	if failures > 0 {
		return fmt.Errorf("%d provider(s) failed", failures)
	}
	return nil
}

func livePing(settings *config.Settings, providerName string, provider llms.Provider) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	model := settings.NativeModelID(settings.ResolveModelAlias(settings.DefaultModel()), providerName)
	_, err := provider.Complete(ctx, llms.Request{
		Model:     model,
		Messages:  []protocol.Message{protocol.User("ping")},
		MaxTokens: 1,
	})
	return err
}
