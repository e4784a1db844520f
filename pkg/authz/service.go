package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"github.com/sirupsen/logrus"
)

// Service provides helpers for enforcing authorization decisions.
type Service struct {
	cfg          Config
	enforcer     *casbin.Enforcer
	logger       *logrus.Entry
	flagProvider FlagProvider
	mu           sync.RWMutex
}

func NewService(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()

	var logger *logrus.Entry
	if cfg.Logger != nil {
		logger = cfg.Logger.WithField("component", "authz")
	} else {
		logger = logrus.WithField("component", "authz")
	}

	enf, err := newEnforcer(cfg)
	if err != nil {
		return nil, err
	}

	provider := cfg.FlagProvider
	if provider == nil {
		if cfg.FlagPath != "" {
			provider = NewFileFlagProvider(cfg.FlagPath, cfg.FlagMode)
		} else {
			provider = NewStaticFlagProvider(cfg.FlagMode)
		}
	}

	return &Service{
		cfg:          cfg,
		enforcer:     enf,
		logger:       logger,
		flagProvider: provider,
	}, nil
}

func newEnforcer(cfg Config) (*casbin.Enforcer, error) {
	if cfg.ModelPath != "" {
		enf, err := casbin.NewEnforcer(cfg.ModelPath, fileadapter.NewAdapter(cfg.PolicyPath))
		if err != nil {
			return nil, fmt.Errorf("authz: failed to initialize enforcer: %w", err)
		}
		if err := enf.LoadPolicy(); err != nil {
			return nil, fmt.Errorf("authz: failed to load policies: %w", err)
		}
		return enf, nil
	}

	m, err := model.NewModelFromString(defaultModel)
	if err != nil {
		return nil, fmt.Errorf("authz: failed to parse model: %w", err)
	}
	enf, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz: failed to initialize enforcer: %w", err)
	}
	if _, err := enf.AddPolicies(defaultPolicies); err != nil {
		return nil, fmt.Errorf("authz: failed to add default policies: %w", err)
	}
	if _, err := enf.AddGroupingPolicies(defaultGroupings); err != nil {
		return nil, fmt.Errorf("authz: failed to add default groupings: %w", err)
	}
	return enf, nil
}

// AuthorizeRoles checks object/action against every role the caller holds.
// It returns a *ForbiddenError only in enforce mode.
func (s *Service) AuthorizeRoles(ctx context.Context, roles []string, object, action string) error {
	mode := s.flagProvider.Mode()
	if mode == ModeDisabled {
		return nil
	}

	start := time.Now()
	allowed := false
	subjects := make([]string, 0, len(roles))
	for _, role := range roles {
		subject := SubjectForRole(role)
		subjects = append(subjects, subject)
		ok, err := s.Check(ctx, NewRequest(subject, object, action))
		if err != nil {
			return err
		}
		if ok {
			allowed = true
			break
		}
	}
	recordDecision(mode, allowed, time.Since(start))
	if allowed {
		return nil
	}

	fields := logrus.Fields{
		"subjects": subjects,
		"object":   object,
		"action":   action,
		"mode":     mode,
	}
	if mode == ModeEnforce {
		s.logger.WithContext(ctx).WithFields(fields).Warn("authz denied request")
		return &ForbiddenError{Subjects: subjects, Object: object, Action: NormalizeAction(action)}
	}
	s.logger.WithContext(ctx).WithFields(fields).Warn("authz shadow deny")
	return nil
}

// Check evaluates a request without returning an authorization error.
func (s *Service) Check(_ context.Context, req Request) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, err := s.enforcer.Enforce(req.Subject, req.Object, req.Action)
	if err != nil {
		return false, fmt.Errorf("authz: enforce failed: %w", err)
	}
	return res, nil
}

func (s *Service) Mode() Mode {
	return s.flagProvider.Mode()
}

// ReloadPolicy reloads policy data from disk. The built-in policy set has no
// backing file and is left untouched.
func (s *Service) ReloadPolicy(ctx context.Context) error {
	if s.cfg.PolicyPath == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enforcer.LoadPolicy(); err != nil {
		return fmt.Errorf("authz: reload policy failed: %w", err)
	}
	s.logger.WithContext(ctx).Info("authz policy reloaded")
	return nil
}
