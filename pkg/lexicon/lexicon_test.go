package lexicon

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesMarshalsAsBase64URL(t *testing.T) {
	payload := Bytes{0xfb, 0xff, 0x00, 0x01, 0x02}

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var s string
	require.NoError(t, json.Unmarshal(data, &s))
	assert.NotContains(t, s, "=", "padding must be stripped")
	assert.NotContains(t, s, "+", "must use the url alphabet")
	assert.NotContains(t, s, "/", "must use the url alphabet")

	var decoded Bytes
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestBytesUnmarshalRejectsBadInput(t *testing.T) {
	var b Bytes

	err := json.Unmarshal([]byte(`42`), &b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base64url")

	err = json.Unmarshal([]byte(`"not!!valid"`), &b)
	require.Error(t, err)

	// Standard encoding with padding is not accepted.
	err = json.Unmarshal([]byte(`"AQID=="`), &b)
	require.Error(t, err)
}

func TestBytesInsideStruct(t *testing.T) {
	req := RotateRequest{
		PublicKey:  Bytes("public-material"),
		PrivateKey: Bytes("private-material"),
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded RotateRequest
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, req, decoded)
}

func TestMethodRegistry(t *testing.T) {
	for nsid, m := range Methods {
		assert.Equal(t, nsid, m.NSID, "registry key must match the method NSID")
		assert.True(t, KnownService(m.Service), "method %s names unknown service %q", nsid, m.Service)
		assert.True(t, strings.HasPrefix(nsid, "social.spkeasy."), "NSID %s outside the namespace", nsid)

		switch m.Kind {
		case KindQuery, KindProcedure:
		default:
			t.Errorf("method %s has kind %q", nsid, m.Kind)
		}
	}

	// Each deployment serves five methods.
	for _, service := range []string{ServiceKeys, ServiceTrust, ServicePrivateSessions, ServicePrivateProfiles} {
		methods := ForService(service)
		assert.Len(t, methods, 5, "service %s", service)

		nsids := make([]string, len(methods))
		for i, m := range methods {
			nsids[i] = m.NSID
		}
		assert.True(t, sort.StringsAreSorted(nsids), "ForService(%s) must be sorted", service)
	}
}

func TestServiceOnlyMethods(t *testing.T) {
	serviceOnly := map[string]bool{}
	for nsid, m := range Methods {
		if m.ServiceOnly {
			serviceOnly[nsid] = true
		}
	}

	assert.Equal(t, map[string]bool{
		KeyGetPrivateKeys:        true,
		PrivateSessionUpdateKeys: true,
		ProfileSessionUpdateKeys: true,
	}, serviceOnly, "batch private key fetch and updateKeys are the only inter-service surfaces")
}

func TestSessionServices(t *testing.T) {
	services := SessionServices()
	require.Equal(t, []string{ServicePrivateSessions, ServicePrivateProfiles}, services)

	for _, s := range services {
		assert.True(t, KnownService(s))
	}
	assert.False(t, KnownService("made-up"))
}
