package backend

import (
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

func in(name, sig string) introspect.Arg {
	return introspect.Arg{Name: name, Type: sig, Direction: "in"}
}

func out(name, sig string) introspect.Arg {
	return introspect.Arg{Name: name, Type: sig, Direction: "out"}
}

// responseArgs are the trailing out arguments every request method shares
var responseArgs = []introspect.Arg{out("response", "u"), out("results", "a{sv}")}

func method(name string, args ...introspect.Arg) introspect.Method {
	return introspect.Method{Name: name, Args: append(args, responseArgs...)}
}

// introspectNode describes the object exported at ObjectPath
func introspectNode(props *prop.Properties) *introspect.Node {
	return &introspect.Node{
		Name: string(ObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name: ScreenCastInterface,
				Methods: []introspect.Method{
					method("CreateSession", in("handle", "o"), in("session_handle", "o"), in("app_id", "s"), in("options", "a{sv}")),
					method("SelectSources", in("handle", "o"), in("session_handle", "o"), in("app_id", "s"), in("options", "a{sv}")),
					method("Start", in("handle", "o"), in("session_handle", "o"), in("app_id", "s"), in("parent_window", "s"), in("options", "a{sv}")),
				},
				Properties: props.Introspection(ScreenCastInterface),
			},
			{
				Name: ScreenshotInterface,
				Methods: []introspect.Method{
					method("Screenshot", in("handle", "o"), in("app_id", "s"), in("parent_window", "s"), in("options", "a{sv}")),
					method("PickColor", in("handle", "o"), in("app_id", "s"), in("parent_window", "s"), in("options", "a{sv}")),
				},
				Properties: props.Introspection(ScreenshotInterface),
			},
			{
				Name: AccessInterface,
				Methods: []introspect.Method{
					method("AccessDialog", in("handle", "o"), in("app_id", "s"), in("parent_window", "s"),
						in("title", "s"), in("subtitle", "s"), in("body", "s"), in("options", "a{sv}")),
				},
				Properties: props.Introspection(AccessInterface),
			},
		},
	}
}
