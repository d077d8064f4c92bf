package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/userrelay/internal/directory"
)

func TestReadPayload(t *testing.T) {
	p, err := readPayload(`{"email":"a@b.io","n":1}`, "")
	require.NoError(t, err)
	require.Equal(t, "a@b.io", p["email"])
	require.Equal(t, float64(1), p["n"])

	_, err = readPayload("", "")
	require.Error(t, err)
	_, err = readPayload(`{}`, "x.json")
	require.Error(t, err)
	_, err = readPayload(`[1,2]`, "")
	require.Error(t, err)
	_, err = readPayload(`null`, "")
	require.Error(t, err)
}

func TestReplaceTenant(t *testing.T) {
	recs := []directory.TenantRecord{
		{TenantID: "a", BackendURL: "mem://a"},
		{TenantID: " b ", BackendURL: "mem://old"},
		{TenantID: "b", BackendURL: "mem://old2"},
	}
	out := replaceTenant(recs, directory.TenantRecord{TenantID: "b", BackendURL: "mem://new"})
	require.Len(t, out, 2)
	require.Equal(t, "a", out[0].TenantID)
	require.Equal(t, "mem://new", out[1].BackendURL)

	out = replaceTenant(nil, directory.TenantRecord{TenantID: "c"})
	require.Len(t, out, 1)
}

func TestView_NeverShowsKey(t *testing.T) {
	v := view(directory.TenantRecord{TenantID: "1", BackendURL: "postgres://u:p@db/x?sslmode=disable", BackendKey: "super-secret-service-role"})
	require.Equal(t, "postgres://db/x", v.BackendURL)
	require.NotContains(t, v.Key, "secret-service")

	v = view(directory.TenantRecord{TenantID: "1", BackendURL: "mem://a", BackendKeyEnc: "x|y"})
	require.Equal(t, "sealed", v.Key)

	v = view(directory.TenantRecord{TenantID: "1", BackendURL: "mem://a"})
	require.Equal(t, "-", v.Key)
}
