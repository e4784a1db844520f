package eventbus

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

// EventBus dispatches events to subscribers whose parameter list matches the
// published arguments.
type EventBus interface {
	Publish(args ...any)
	PublishE(args ...any) error
	Subscribe(handler any)
	Unsubscribe(handler any)
	Clear()
	SubscribersCount() int
}

var (
	ErrNoSubscribers        = errors.New("eventbus: no matching subscribers")
	ErrInvalidHandlerReturn = errors.New("eventbus: invalid handler return signature")
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type publisher struct {
	log         *logrus.Logger
	mu          sync.RWMutex
	subscribers []reflect.Value
}

func NewEventPublisher(log *logrus.Logger) EventBus {
	return &publisher{log: log}
}

func MatchSignature(handler any, args []any) bool {
	t := reflect.TypeOf(handler)
	if t == nil || t.Kind() != reflect.Func || t.NumIn() != len(args) {
		return false
	}
	for i, arg := range args {
		paramType := t.In(i)
		if arg == nil {
			if paramType.Kind() != reflect.Interface && paramType.Kind() != reflect.Ptr {
				return false
			}
			continue
		}
		if !reflect.TypeOf(arg).AssignableTo(paramType) {
			return false
		}
	}
	return true
}

func (p *publisher) matching(args []any) []reflect.Value {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]reflect.Value, 0, len(p.subscribers))
	for _, s := range p.subscribers {
		if MatchSignature(s.Interface(), args) {
			out = append(out, s)
		}
	}
	return out
}

func callArgs(handler reflect.Value, args []any) []reflect.Value {
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		if arg == nil {
			in[i] = reflect.Zero(handler.Type().In(i))
			continue
		}
		in[i] = reflect.ValueOf(arg)
	}
	return in
}

// Publish calls every matching handler. Handler panics are recovered and logged.
func (p *publisher) Publish(args ...any) {
	handlers := p.matching(args)
	if len(handlers) == 0 {
		if p.log != nil {
			p.log.Warnf("eventbus.Publish: no matching subscribers for event with args: %v", args)
		}
		return
	}
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil && p.log != nil {
					p.log.Errorf("eventbus: handler %s panicked with args %v: %v", h.Type().String(), args, r)
				}
			}()
			h.Call(callArgs(h, args))
		}()
	}
}

// PublishE is Publish for handlers returning error; errors and panics are joined.
func (p *publisher) PublishE(args ...any) error {
	handlers := p.matching(args)
	if len(handlers) == 0 {
		return ErrNoSubscribers
	}

	var errs []error
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					errs = append(errs, fmt.Errorf("eventbus: handler %s panicked: %v", h.Type().String(), r))
				}
			}()
			out := h.Call(callArgs(h, args))
			switch {
			case len(out) == 0:
			case len(out) == 1 && out[0].Type() == errorType:
				if !out[0].IsNil() {
					errs = append(errs, out[0].Interface().(error))
				}
			default:
				errs = append(errs, fmt.Errorf("%w: handler %s", ErrInvalidHandlerReturn, h.Type().String()))
			}
		}()
	}
	return errors.Join(errs...)
}

func (p *publisher) Subscribe(handler any) {
	v := reflect.ValueOf(handler)
	if v.Kind() != reflect.Func {
		panic("handler must be a function")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, v)
}

// Unsubscribe removes the first subscriber backed by the same function.
func (p *publisher) Unsubscribe(handler any) {
	v := reflect.ValueOf(handler)
	if v.Kind() != reflect.Func {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.subscribers {
		if s.Pointer() == v.Pointer() {
			p.subscribers = append(p.subscribers[:i], p.subscribers[i+1:]...)
			return
		}
	}
}

func (p *publisher) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = nil
}

func (p *publisher) SubscribersCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers)
}
