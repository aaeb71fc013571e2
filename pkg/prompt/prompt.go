// Package prompt assembles the per-turn system prompt from rules,
// skills, model profiles, and hook injections, recording every
// modification as an injection record.
package prompt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/quillcode/quill/pkg/config"
	"github.com/quillcode/quill/pkg/hooks"
	"github.com/quillcode/quill/pkg/transcript"
)

// Injection sources.
const (
	SourceRules          = "rules"
	SourceSkillMetadata  = "skill_metadata"
	SourceSkillTrigger   = "skill_trigger"
	SourceHook           = "hook"
	SourceProfile        = "profile"
	SourceStuckDetection = "stuck_detection"
)

// Injection locations.
const (
	LocationPrepend = "system_prompt_prepend"
	LocationAppend  = "system_prompt_append"
	LocationMessage = "message_inject"
)

// Injection records one modification to the built context.
type Injection struct {
	Source       string
	Location     string
	Origin       string
	Content      string
	TriggerType  string
	TriggerMatch string
}

// BuilderConfig wires the builder's collaborators. Transcript may be
// nil when logging is disabled.
type BuilderConfig struct {
	Profiles   map[string]config.ProfileConfig
	Rules      []RuleFile
	Skills     []Skill
	Hooks      *hooks.Manager
	Transcript *transcript.Logger
	Logger     *slog.Logger
}

// Builder assembles system prompts. One builder serves a whole session;
// rules and skills are collected once at construction.
type Builder struct {
	profiles map[string]config.ProfileConfig
	rules    []RuleFile
	skills   []Skill
	hooks    *hooks.Manager
	log      *transcript.Logger
	logger   *slog.Logger
}

func NewBuilder(cfg BuilderConfig) *Builder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Builder{
		profiles: cfg.Profiles,
		rules:    cfg.Rules,
		skills:   cfg.Skills,
		hooks:    cfg.Hooks,
		log:      cfg.Transcript,
		logger:   logger,
	}
}

// Request describes one context build.
type Request struct {
	BasePrompt string
	// Model is the canonical model id, used for profile mapping.
	Model string
	// Profile selects a profile by name; empty means map from Model.
	Profile   string
	SessionID string
	Cwd       string

	RulesEnabled  bool
	SkillsEnabled bool
}

// Result is the built prompt plus the ordered injection records.
type Result struct {
	SystemPrompt string
	Injections   []Injection
}

// Skill looks up a loaded skill by name, for slash and automatic
// triggers resolved by the processor.
func (b *Builder) Skill(name string) (Skill, bool) {
	for _, s := range b.skills {
		if s.Name == name {
			return s, true
		}
	}
	return Skill{}, false
}

// Build assembles the final system prompt. Hook failures degrade to a
// logged continue; Build itself fails only on context cancellation.
func (b *Builder) Build(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{}
	b.logContextInit(req.BasePrompt)

	var rulesBlock string
	if req.RulesEnabled && len(b.rules) > 0 {
		var blocks []string
		for _, rule := range b.rules {
			blocks = append(blocks, rule.Content)
			b.record(result, Injection{
				Source:   SourceRules,
				Location: LocationPrepend,
				Origin:   rule.Path,
				Content:  rule.Content,
			})
		}
		rulesBlock = strings.Join(blocks, "\n\n")
	}

	var profilePrefix, patternsBlock, profileSuffix string
	profileName, profile, found := b.resolveProfile(req.Profile, req.Model)
	if found {
		if profile.SystemPromptPrefix != "" {
			profilePrefix = profile.SystemPromptPrefix
			b.record(result, Injection{
				Source:   SourceProfile,
				Location: LocationPrepend,
				Origin:   profileName,
				Content:  profilePrefix,
			})
		}
		if len(profile.EnabledPatterns) > 0 {
			patternsBlock = "Enabled patterns:\n- " + strings.Join(profile.EnabledPatterns, "\n- ")
			b.record(result, Injection{
				Source:   SourceProfile,
				Location: LocationPrepend,
				Origin:   profileName,
				Content:  patternsBlock,
			})
		}
		if profile.SystemPromptSuffix != "" {
			profileSuffix = profile.SystemPromptSuffix
			b.record(result, Injection{
				Source:   SourceProfile,
				Location: LocationAppend,
				Origin:   profileName,
				Content:  profileSuffix,
			})
		}
	}

	var skillsBlock string
	if req.SkillsEnabled && len(b.skills) > 0 {
		skillsBlock = b.skillMetadataBlock()
		b.record(result, Injection{
			Source:   SourceSkillMetadata,
			Location: LocationAppend,
			Origin:   "skills",
			Content:  skillsBlock,
		})
	}

	// The hook sees everything collected so far; its prepends still land
	// before the profile fragments in the final ordering.
	var hookPrepend, hookAppend []string
	if outcome := b.dispatchHook(ctx, req, result); outcome != nil {
		for _, inj := range outcome.Injections {
			location := LocationAppend
			if inj.Location == hooks.LocationPrepend {
				location = LocationPrepend
			}
			b.record(result, Injection{
				Source:   SourceHook,
				Location: location,
				Origin:   inj.Source,
				Content:  inj.Content,
			})
			if location == LocationPrepend {
				hookPrepend = append(hookPrepend, inj.Content)
			} else {
				hookAppend = append(hookAppend, inj.Content)
			}
		}
	}

	var parts []string
	for _, part := range [][]string{
		{rulesBlock}, hookPrepend, {profilePrefix, patternsBlock},
		{req.BasePrompt},
		{profileSuffix, skillsBlock}, hookAppend,
	} {
		for _, p := range part {
			if p != "" {
				parts = append(parts, p)
			}
		}
	}
	result.SystemPrompt = strings.Join(parts, "\n\n")

	if b.log != nil {
		b.log.ContextReady(result.SystemPrompt)
	}
	return result, nil
}

// TriggerInjection builds the in-band guidance message for a skill
// trigger and records it. Used by the processor for /skill commands and
// automatic keyword triggers.
func (b *Builder) TriggerInjection(skill Skill, triggerType, match string) Injection {
	inj := Injection{
		Source:       SourceSkillTrigger,
		Location:     LocationMessage,
		Origin:       skill.Path,
		Content:      fmt.Sprintf("[System guidance: skill %q]\n\n%s", skill.Name, skill.Body),
		TriggerType:  triggerType,
		TriggerMatch: match,
	}
	b.logInjection(inj)
	return inj
}

func (b *Builder) resolveProfile(explicit, model string) (string, config.ProfileConfig, bool) {
	if explicit != "" {
		if profile, ok := b.profiles[explicit]; ok {
			return explicit, profile, true
		}
		b.logger.Warn("unknown profile, falling back to model mapping", "profile", explicit)
	}

	names := make([]string, 0, len(b.profiles))
	for name := range b.profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, pattern := range b.profiles[name].Models {
			if matchesModel(pattern, model) {
				return name, b.profiles[name], true
			}
		}
	}
	return "", config.ProfileConfig{}, false
}

// matchesModel supports exact ids and trailing-star prefixes
// ("anthropic/*").
func matchesModel(pattern, model string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(model, prefix)
	}
	return pattern == model
}

func (b *Builder) skillMetadataBlock() string {
	var lines []string
	for _, s := range b.skills {
		lines = append(lines, fmt.Sprintf("- %s: %s", s.Name, s.Description))
	}
	return "Available skills (invoke with /skill <name>):\n" + strings.Join(lines, "\n")
}

func (b *Builder) dispatchHook(ctx context.Context, req Request, result *Result) *hooks.Outcome {
	if b.hooks == nil {
		return nil
	}

	soFar := make([]string, 0, len(result.Injections))
	for _, inj := range result.Injections {
		soFar = append(soFar, inj.Content)
	}

	outcome, err := b.hooks.Dispatch(ctx, hooks.Context{
		Event:            hooks.EventContextBuild,
		SessionID:        req.SessionID,
		Cwd:              req.Cwd,
		BaseSystemPrompt: req.BasePrompt,
		InjectionsSoFar:  soFar,
	})
	if err != nil {
		b.logger.Warn("context build hook dispatch failed, continuing", "error", err)
		return nil
	}
	return outcome
}

func (b *Builder) record(result *Result, inj Injection) {
	result.Injections = append(result.Injections, inj)
	b.logInjection(inj)
}

func (b *Builder) logContextInit(base string) {
	if b.log != nil {
		b.log.ContextInit(base)
	}
}

func (b *Builder) logInjection(inj Injection) {
	if b.log == nil {
		return
	}
	b.log.ContextInjection(transcript.InjectionRecord{
		Source:       inj.Source,
		Location:     inj.Location,
		Content:      inj.Content,
		Origin:       inj.Origin,
		TriggerType:  inj.TriggerType,
		TriggerMatch: inj.TriggerMatch,
	})
}
