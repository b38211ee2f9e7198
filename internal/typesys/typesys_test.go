package typesys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestValidatePrimitives(t *testing.T) {
	testCases := []struct {
		name    string
		typ     *Type
		val     cty.Value
		wantErr bool
	}{
		{"bool ok", Bool(), cty.True, false},
		{"bool wrong type", Bool(), cty.StringVal("true"), true},
		{"int ok", Int(), cty.NumberIntVal(42), false},
		{"int not whole", Int(), cty.NumberFloatVal(4.2), true},
		{"int wrong type", Int(), cty.True, true},
		{"string ok", String(), cty.StringVal("hello"), false},
		{"string wrong type", String(), cty.NumberIntVal(1), true},
		{"null rejected", String(), cty.NullVal(cty.String), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.val, tc.typ)
			if tc.wantErr {
				require.Error(t, err)
				var tm *TypeMismatchError
				require.ErrorAs(t, err, &tm)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateEnum(t *testing.T) {
	mode := Enum("dhcp", "static", "none")

	require.NoError(t, Validate(cty.StringVal("static"), mode))

	err := Validate(cty.StringVal("bridged"), mode)
	require.Error(t, err)
	var tm *TypeMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, []string{"dhcp", "none", "static"}, tm.Valid)
	assert.Contains(t, err.Error(), "bridged")
}

func TestValidateList(t *testing.T) {
	drivers := ListOf(String())

	ok := cty.ListVal([]cty.Value{cty.StringVal("virtio-blk"), cty.StringVal("ahci")})
	require.NoError(t, Validate(ok, drivers))

	// Tuples from HCL literals are accepted as lists.
	tup := cty.TupleVal([]cty.Value{cty.StringVal("virtio-blk")})
	require.NoError(t, Validate(tup, drivers))

	bad := cty.TupleVal([]cty.Value{cty.StringVal("virtio-blk"), cty.NumberIntVal(3)})
	require.Error(t, Validate(bad, drivers))
}

func TestValidateStruct(t *testing.T) {
	iface := Struct(map[string]*Type{
		"address": String(),
		"netmask": String(),
		"gateway": String(),
	}, "address")

	full := cty.ObjectVal(map[string]cty.Value{
		"address": cty.StringVal("10.0.0.2"),
		"netmask": cty.StringVal("255.255.255.0"),
		"gateway": cty.StringVal("10.0.0.1"),
	})
	require.NoError(t, Validate(full, iface))

	// Optional fields may be absent.
	minimal := cty.ObjectVal(map[string]cty.Value{
		"address": cty.StringVal("10.0.0.2"),
	})
	require.NoError(t, Validate(minimal, iface))

	missing := cty.ObjectVal(map[string]cty.Value{
		"gateway": cty.StringVal("10.0.0.1"),
	})
	err := Validate(missing, iface)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required field "address"`)

	unknown := cty.ObjectVal(map[string]cty.Value{
		"address": cty.StringVal("10.0.0.2"),
		"mtu":     cty.StringVal("1500"),
	})
	err = Validate(unknown, iface)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown field "mtu"`)
}

func TestValidateMap(t *testing.T) {
	ifaces := MapOf(Struct(map[string]*Type{"address": String()}, "address"))

	val := cty.ObjectVal(map[string]cty.Value{
		"eth0": cty.ObjectVal(map[string]cty.Value{"address": cty.StringVal("10.0.0.2")}),
	})
	require.NoError(t, Validate(val, ifaces))

	bad := cty.ObjectVal(map[string]cty.Value{
		"eth0": cty.ObjectVal(map[string]cty.Value{"address": cty.NumberIntVal(10)}),
	})
	require.Error(t, Validate(bad, ifaces))
}

func TestParseTypeString(t *testing.T) {
	testCases := []struct {
		src  string
		want Kind
	}{
		{"string", KindString},
		{"bool", KindBool},
		{"int", KindInt},
		{"number", KindInt},
		{"list(string)", KindList},
		{"map(bool)", KindMap},
		{`enum("dhcp", "static")`, KindEnum},
	}

	for _, tc := range testCases {
		t.Run(tc.src, func(t *testing.T) {
			typ, err := ParseTypeString(tc.src)
			require.NoError(t, err)
			assert.Equal(t, tc.want, typ.Kind())
		})
	}
}

func TestParseTypeStringErrors(t *testing.T) {
	for _, src := range []string{"frobnicate", "list(string, bool)", "enum()", "set(string)"} {
		t.Run(src, func(t *testing.T) {
			_, err := ParseTypeString(src)
			require.Error(t, err)
		})
	}
}

func TestFriendlyNames(t *testing.T) {
	assert.Equal(t, "list(string)", ListOf(String()).FriendlyName())
	assert.Equal(t, "enum(a, b)", Enum("b", "a").FriendlyName())
	assert.Equal(t, "map(int)", MapOf(Int()).FriendlyName())
}
