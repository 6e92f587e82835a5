package remoteloader

import (
	"context"
	"time"

	"github.com/dop251/goja"

	"github.com/boardwalkbbs/server/internal/bbs/capability"
	"github.com/boardwalkbbs/server/internal/bbs/domain"
)

// wrapCapability projects a capability.Facade onto a JS object the
// sandboxed app's on_init hook receives, so a remote app reaches storage
// and current_user only through the same narrow surface a builtin app
// uses (spec §4.8). Every call re-enters Go, which is where the Facade's
// own rate limiting applies.
func wrapCapability(vm *goja.Runtime, facade *capability.Facade) goja.Value {
	obj := vm.NewObject()
	obj.Set("storage", wrapScope(vm, facade.Storage()))
	obj.Set("userStorage", func(call goja.FunctionCall) goja.Value {
		return wrapScope(vm, facade.UserStorage(call.Argument(0).String()))
	})
	obj.Set("namespacedStorage", func(call goja.FunctionCall) goja.Value {
		return wrapScope(vm, facade.NamespacedStorage(call.Argument(0).String()))
	})
	obj.Set("currentUser", func(call goja.FunctionCall) goja.Value {
		sess := jsToSessionView(call.Argument(0))
		u, ok, err := facade.CurrentUser(context.Background(), sess)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		if !ok {
			return goja.Null()
		}
		return vm.ToValue(u)
	})
	obj.Set("utils", wrapUtils(vm, facade.Utils()))
	return obj
}

func wrapScope(vm *goja.Runtime, scope *capability.Scope) goja.Value {
	obj := vm.NewObject()
	obj.Set("get", func(call goja.FunctionCall) goja.Value {
		v, ok, err := scope.Get(context.Background(), call.Argument(0).String())
		if err != nil {
			panic(vm.NewGoError(err))
		}
		if !ok {
			return goja.Null()
		}
		return vm.ToValue(v.ToAny())
	})
	obj.Set("set", func(call goja.FunctionCall) goja.Value {
		value, err := domain.FromAny(call.Argument(1).Export())
		if err != nil {
			panic(vm.NewGoError(err))
		}
		if err := scope.Set(context.Background(), call.Argument(0).String(), value); err != nil {
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	})
	obj.Set("delete", func(call goja.FunctionCall) goja.Value {
		if err := scope.Delete(context.Background(), call.Argument(0).String()); err != nil {
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	})
	return obj
}

func wrapUtils(vm *goja.Runtime, utils capability.Utils) goja.Value {
	obj := vm.NewObject()
	obj.Set("asciiBoxedTitle", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(utils.AsciiBoxedTitle(call.Argument(0).String()))
	})
	obj.Set("separator", func(call goja.FunctionCall) goja.Value {
		ch := ' '
		if s := call.Argument(0).String(); len(s) > 0 {
			ch = rune(s[0])
		}
		return vm.ToValue(utils.Separator(ch, int(call.Argument(1).ToInteger())))
	})
	obj.Set("formatDate", func(call goja.FunctionCall) goja.Value {
		ms := call.Argument(0).ToInteger()
		return vm.ToValue(utils.FormatDate(time.UnixMilli(ms)))
	})
	obj.Set("jsonPath", func(call goja.FunctionCall) goja.Value {
		value, err := domain.FromAny(call.Argument(1).Export())
		if err != nil {
			panic(vm.NewGoError(err))
		}
		result, err := utils.JSONPath(call.Argument(0).String(), value)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(result.ToAny())
	})
	return obj
}

func jsToSessionView(v goja.Value) domain.SessionView {
	m, ok := v.Export().(map[string]interface{})
	if !ok {
		return domain.SessionView{}
	}
	view := domain.SessionView{}
	if s, ok := m["sessionKey"].(string); ok {
		view.SessionKey = s
	}
	if s, ok := m["userId"].(string); ok {
		view.UserID = s
	}
	if b, ok := m["isAuthenticated"].(bool); ok {
		view.IsAuthenticated = b
	}
	return view
}
