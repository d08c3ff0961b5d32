package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/discord"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/engine"
)

// SupportedVersions is the range of configuration versions this build reads.
const SupportedVersions = ">= 1.0.0, < 2.0.0"

// Validator checks a ServerConfig before it reaches the diff engine.
type Validator struct {
	validate *validator.Validate
	versions *semver.Constraints
}

// NewValidator creates a validator for SupportedVersions.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	versions, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		panic(err)
	}
	return &Validator{
		validate: v,
		versions: versions,
	}
}

// Validate checks cfg with a default Validator.
func Validate(cfg *engine.ServerConfig) error {
	return NewValidator().Validate(cfg)
}

// Validate returns a VALIDATION_ERROR EngineError listing every error
// finding, or nil. Warnings do not fail validation.
func (v *Validator) Validate(cfg *engine.ServerConfig) error {
	return validationFailure("config", v.Check(cfg).Errors())
}

// Check returns all findings for cfg, errors and warnings.
func (v *Validator) Check(cfg *engine.ServerConfig) ValidationErrors {
	if cfg == nil {
		return ValidationErrors{{Message: "configuration is empty", Severity: SeverityError}}
	}

	c := &checker{}
	v.checkTags(c, cfg)
	v.checkVersion(c, cfg.Version)

	roles := c.checkRoles(cfg.Roles)
	categories := c.checkCategories(cfg.Categories, roles)
	c.checkChannels(cfg.Channels, categories, roles)
	return c.findings
}

func (v *Validator) checkTags(c *checker, cfg *engine.ServerConfig) {
	err := v.validate.Struct(cfg)
	if err == nil {
		return
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		c.errorf("", "%v", err)
		return
	}
	for _, fe := range fieldErrs {
		path := strings.TrimPrefix(fe.Namespace(), "ServerConfig.")
		if fe.Param() != "" {
			c.errorf(path, "failed %s=%s (value %v)", fe.Tag(), fe.Param(), fe.Value())
		} else {
			c.errorf(path, "failed %s", fe.Tag())
		}
	}
}

func (v *Validator) checkVersion(c *checker, version string) {
	if version == "" {
		// Reported by the required tag.
		return
	}
	ver, err := semver.NewVersion(version)
	if err != nil {
		c.errorf("version", "invalid version %q: %v", version, err)
		return
	}
	if !v.versions.Check(ver) {
		c.errorf("version", "version %s is not supported (want %s)", version, SupportedVersions)
	}
}

type checker struct {
	findings ValidationErrors
}

func (c *checker) errorf(path, format string, args ...interface{}) {
	c.findings = append(c.findings, ValidationError{
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityError,
	})
}

func (c *checker) warnf(path, format string, args ...interface{}) {
	c.findings = append(c.findings, ValidationError{
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityWarning,
	})
}

func (c *checker) checkRoles(roles []engine.RoleConfig) map[string]bool {
	seen := make(map[string]bool, len(roles))
	for i, r := range roles {
		path := fmt.Sprintf("roles[%d]", i)
		if seen[r.Name] {
			c.errorf(path+".name", "duplicate role %q", r.Name)
		}
		seen[r.Name] = true

		if _, err := r.Color.Value(); err != nil {
			c.errorf(path+".color", "%v", err)
		}
		c.checkFlags(path+".permissions", r.Permissions)
		if r.Name == engine.EveryoneRole && (r.Color != "" || r.Hoist || r.Mentionable) {
			c.warnf(path, "only permissions are managed on %s", engine.EveryoneRole)
		}
	}
	return seen
}

func (c *checker) checkCategories(categories []engine.CategoryConfig, roles map[string]bool) map[string]bool {
	seen := make(map[string]bool, len(categories))
	for i, cat := range categories {
		path := fmt.Sprintf("categories[%d]", i)
		if seen[cat.Name] {
			c.errorf(path+".name", "duplicate category %q", cat.Name)
		}
		seen[cat.Name] = true
		c.checkOverwrites(path+".permissions", cat.Permissions, roles)
	}
	return seen
}

func (c *checker) checkChannels(channels []engine.ChannelConfig, categories, roles map[string]bool) {
	seen := make(map[string]string, len(channels))
	for i, ch := range channels {
		path := fmt.Sprintf("channels[%d]", i)

		t, err := ch.ChannelType()
		if err != nil {
			// Reported by the oneof tag.
			continue
		}

		key := engine.CanonicalChannelName(ch.Name, t)
		if prev, ok := seen[key]; ok {
			c.errorf(path+".name", "channel %q collides with %q", ch.Name, prev)
		} else {
			seen[key] = ch.Name
		}

		if ch.Parent != "" && !categories[ch.Parent] {
			c.errorf(path+".parent", "parent %q is not a declared category", ch.Parent)
		}
		if t.IsVoice() {
			if ch.Topic != "" || ch.Slowmode != 0 {
				c.warnf(path, "topic and slowmode are ignored on %s channels", t)
			}
		} else if ch.Bitrate != 0 || ch.UserLimit != 0 {
			c.warnf(path, "bitrate and user_limit are ignored on %s channels", t)
		}
		c.checkOverwrites(path+".permissions", ch.Permissions, roles)
	}
}

func (c *checker) checkOverwrites(path string, overwrites []engine.PermissionOverwriteConfig, roles map[string]bool) {
	subjects := make(map[string]bool, len(overwrites))
	for i, ow := range overwrites {
		p := fmt.Sprintf("%s[%d]", path, i)
		if subjects[ow.Role] {
			c.errorf(p+".role", "role %q has more than one overwrite on this target", ow.Role)
		}
		subjects[ow.Role] = true

		if ow.Role != "" && ow.Role != engine.EveryoneRole && !roles[ow.Role] {
			c.warnf(p+".role", "role %q is not declared; it must already exist in the guild", ow.Role)
		}

		allow := c.checkFlags(p+".allow", ow.Allow)
		deny := c.checkFlags(p+".deny", ow.Deny)
		if both := allow & deny; both != 0 {
			c.errorf(p, "%s both allowed and denied", discord.FormatPermissions(both))
		}
	}
}

func (c *checker) checkFlags(path string, names []string) discord.Permissions {
	perms, err := discord.ParsePermissions(names)
	if err != nil {
		c.errorf(path, "%v", err)
		return 0
	}
	return perms
}
