package remoteloader

import (
	"time"

	"github.com/dop251/goja"
)

// AllowedModuleNames is the fixed module table stage (f) exposes through
// require(), shared with the manifest dependency allow-list check in
// Loader.Load.
var AllowedModuleNames = []string{"bbs-utils", "bbs-dates"}

// registerAllowedModules implements stage (f): a whitelisted require() that
// returns only host-written stand-ins for a small, fixed module table —
// never the app's own filesystem/network-backed require. Anything outside
// this table raises, matching stage (e)'s "otherwise raises".
func registerAllowedModules(vm *goja.Runtime) {
	modules := map[string]func() goja.Value{
		"bbs-utils": func() goja.Value { return buildUtilsModule(vm) },
		"bbs-dates": func() goja.Value { return buildDatesModule(vm) },
	}

	vm.Set("require", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		build, ok := modules[name]
		if !ok {
			panic(vm.NewTypeError("module not allowed: " + name))
		}
		return build()
	})
}

// buildUtilsModule is the "deep-equal / pick / merge / get" utility
// library stage (f) names as an example allow-listed module.
func buildUtilsModule(vm *goja.Runtime) goja.Value {
	obj := vm.NewObject()

	obj.Set("get", func(call goja.FunctionCall) goja.Value {
		target := call.Argument(0).Export()
		path := call.Argument(1).String()
		m, ok := target.(map[string]interface{})
		if !ok {
			return goja.Undefined()
		}
		v, ok := m[path]
		if !ok {
			return goja.Undefined()
		}
		return vm.ToValue(v)
	})

	obj.Set("pick", func(call goja.FunctionCall) goja.Value {
		m, ok := call.Argument(0).Export().(map[string]interface{})
		if !ok {
			return vm.ToValue(map[string]interface{}{})
		}
		out := make(map[string]interface{})
		for _, arg := range call.Arguments[1:] {
			key := arg.String()
			if v, present := m[key]; present {
				out[key] = v
			}
		}
		return vm.ToValue(out)
	})

	obj.Set("merge", func(call goja.FunctionCall) goja.Value {
		out := make(map[string]interface{})
		for _, arg := range call.Arguments {
			if m, ok := arg.Export().(map[string]interface{}); ok {
				for k, v := range m {
					out[k] = v
				}
			}
		}
		return vm.ToValue(out)
	})

	obj.Set("deepEqual", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(deepEqual(call.Argument(0).Export(), call.Argument(1).Export()))
	})

	return obj
}

func deepEqual(a, b interface{}) bool {
	am, aIsMap := a.(map[string]interface{})
	bm, bIsMap := b.(map[string]interface{})
	if aIsMap && bIsMap {
		if len(am) != len(bm) {
			return false
		}
		for k, v := range am {
			if !deepEqual(v, bm[k]) {
				return false
			}
		}
		return true
	}

	as, aIsSlice := a.([]interface{})
	bs, bIsSlice := b.([]interface{})
	if aIsSlice && bIsSlice {
		if len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !deepEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}

	return a == b
}

// buildDatesModule is the "date library offering format and relative-time"
// stage (f) names as an example allow-listed module.
func buildDatesModule(vm *goja.Runtime) goja.Value {
	obj := vm.NewObject()

	obj.Set("format", func(call goja.FunctionCall) goja.Value {
		ms := call.Argument(0).ToInteger()
		t := time.UnixMilli(ms).UTC()
		return vm.ToValue(t.Format("2006-01-02 15:04:05"))
	})

	obj.Set("relative", func(call goja.FunctionCall) goja.Value {
		ms := call.Argument(0).ToInteger()
		t := time.UnixMilli(ms).UTC()
		d := time.Since(t)
		switch {
		case d < time.Minute:
			return vm.ToValue("just now")
		case d < time.Hour:
			return vm.ToValue("minutes ago")
		case d < 24*time.Hour:
			return vm.ToValue("hours ago")
		default:
			return vm.ToValue("days ago")
		}
	})

	return obj
}

