package preseed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyubomir-popov/maas/internal/domain"
	"github.com/lyubomir-popov/maas/internal/rpc"
)

func globalContextKeys() []string {
	return []string{
		"osystem",
		"release",
		"metadata_enlist_url",
		"server_host",
		"server_url",
		"main_archive_hostname",
		"main_archive_directory",
		"ports_archive_hostname",
		"ports_archive_directory",
		"enable_http_proxy",
		"http_proxy",
		"syslog_host_port",
	}
}

func nodeContextKeys() []string {
	return []string{
		"driver",
		"driver_package",
		"node",
		"node_disable_pxe_data",
		"node_disable_pxe_url",
		"preseed_data",
		"third_party_drivers",
		"license_key",
	}
}

func TestGlobalContextKeySet(t *testing.T) {
	e := newTestEngine(newFakeStore(), &fakeRack{})
	ctx, err := e.GlobalContext(context.Background(), "ubuntu", "xenial", "")
	require.NoError(t, err)

	assert.Len(t, ctx, len(globalContextKeys()))
	for _, key := range globalContextKeys() {
		assert.Contains(t, ctx, key)
	}
}

func TestGlobalContextValues(t *testing.T) {
	store := newFakeStore()
	store.cfg.EnableHTTPProxy = true
	store.cfg.HTTPProxy = "http://proxy.example.com:8000"
	e := newTestEngine(store, &fakeRack{})

	ctx, err := e.GlobalContext(context.Background(), "ubuntu", "xenial", "")
	require.NoError(t, err)

	assert.Equal(t, "ubuntu", ctx["osystem"])
	assert.Equal(t, "xenial", ctx["release"])
	assert.Equal(t, "http://10.0.0.1:5240", ctx["server_url"])
	assert.Equal(t, "10.0.0.1", ctx["server_host"])
	assert.Equal(t, "http://10.0.0.1:5240/metadata/enlist", ctx["metadata_enlist_url"])
	assert.Equal(t, true, ctx["enable_http_proxy"])
	assert.Equal(t, "http://proxy.example.com:8000", ctx["http_proxy"])
	assert.Equal(t, "10.0.0.1:514", ctx["syslog_host_port"])
}

func TestGlobalContextArchivesDefaultToCanonicalMirrors(t *testing.T) {
	e := newTestEngine(newFakeStore(), &fakeRack{})
	ctx, err := e.GlobalContext(context.Background(), "ubuntu", "xenial", "")
	require.NoError(t, err)

	assert.Equal(t, "archive.ubuntu.com", ctx["main_archive_hostname"])
	assert.Equal(t, "ubuntu", ctx["main_archive_directory"])
	assert.Equal(t, "ports.ubuntu.com", ctx["ports_archive_hostname"])
	assert.Equal(t, "ubuntu-ports", ctx["ports_archive_directory"])
}

func TestGlobalContextArchivesFromConfiguredDefaults(t *testing.T) {
	store := newFakeStore()
	store.defaultArchives["amd64"] = domain.PackageRepository{
		URL: "http://mirror.example.com/ubuntu",
	}
	store.defaultArchives["armhf"] = domain.PackageRepository{
		URL: "http://ports.example.com/ports",
	}
	e := newTestEngine(store, &fakeRack{})

	ctx, err := e.GlobalContext(context.Background(), "ubuntu", "xenial", "")
	require.NoError(t, err)

	assert.Equal(t, "mirror.example.com", ctx["main_archive_hostname"])
	assert.Equal(t, "ubuntu", ctx["main_archive_directory"])
	assert.Equal(t, "ports.example.com", ctx["ports_archive_hostname"])
	assert.Equal(t, "ports", ctx["ports_archive_directory"])
}

func TestGlobalContextRemoteSyslogWins(t *testing.T) {
	store := newFakeStore()
	store.cfg.RemoteSyslog = "logs.example.com:2514"
	e := newTestEngine(store, &fakeRack{})

	ctx, err := e.GlobalContext(context.Background(), "ubuntu", "xenial", "")
	require.NoError(t, err)
	assert.Equal(t, "logs.example.com:2514", ctx["syslog_host_port"])
}

func TestGlobalContextUsesGivenBaseURL(t *testing.T) {
	e := newTestEngine(newFakeStore(), &fakeRack{})
	ctx, err := e.GlobalContext(context.Background(), "ubuntu", "xenial", "http://192.168.5.2:5240")
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.5.2:5240", ctx["server_url"])
	assert.Equal(t, "http://192.168.5.2:5240/metadata/enlist", ctx["metadata_enlist_url"])
}

func TestNodeContextKeySet(t *testing.T) {
	e := newTestEngine(newFakeStore(), &fakeRack{})
	ctx, err := e.NodeContext(context.Background(), testMachine(), TypeCommissioning)
	require.NoError(t, err)

	assert.Len(t, ctx, len(nodeContextKeys()))
	for _, key := range nodeContextKeys() {
		assert.Contains(t, ctx, key)
	}
}

func TestNodeContextDisablePXE(t *testing.T) {
	e := newTestEngine(newFakeStore(), &fakeRack{})
	ctx, err := e.NodeContext(context.Background(), testMachine(), TypeCommissioning)
	require.NoError(t, err)

	assert.Equal(t,
		"http://192.168.5.2:5240/api/2.0/machines/node4abc/",
		ctx["node_disable_pxe_url"])
	assert.Equal(t, "op=netboot_off", ctx["node_disable_pxe_data"])
}

func TestNodeContextThirdPartyDriversFlag(t *testing.T) {
	store := newFakeStore()
	store.cfg.EnableThirdPartyDrivers = true
	e := newTestEngine(store, &fakeRack{})

	ctx, err := e.NodeContext(context.Background(), testMachine(), TypeCommissioning)
	require.NoError(t, err)
	assert.Equal(t, true, ctx["third_party_drivers"])
}

func TestNodeContextCommissioningPreseedData(t *testing.T) {
	e := newTestEngine(newFakeStore(), &fakeRack{})
	ctx, err := e.NodeContext(context.Background(), testMachine(), TypeCommissioning)
	require.NoError(t, err)

	data, ok := ctx["preseed_data"].(string)
	require.True(t, ok)
	assert.Contains(t, data, "metadata_url: http://192.168.5.2:5240/metadata/")
	assert.Contains(t, data, "consumer_key: consumer")
	assert.NotContains(t, data, "01_install")
}

func TestNodeContextCurtinPreseedDataCarriesInstallSource(t *testing.T) {
	rack := &fakeRack{images: []domain.BootImage{xinstallImage()}}
	e := newTestEngine(newFakeStore(), rack)

	ctx, err := e.NodeContext(context.Background(), testMachine(), TypeCurtin)
	require.NoError(t, err)

	data, ok := ctx["preseed_data"].(string)
	require.True(t, ok)
	assert.Contains(t, data, "metadata_url: http://192.168.5.2:5240/metadata/curtin")
	assert.Contains(t, data, "01_install: http://192.168.5.2:5248/images/ubuntu/amd64/generic/xenial/release/root-tgz")
}

func TestNodeContextCurtinPropagatesClusterUnavailable(t *testing.T) {
	rack := &fakeRack{listErr: rpc.ErrNoConnections}
	e := newTestEngine(newFakeStore(), rack)

	_, err := e.NodeContext(context.Background(), testMachine(), TypeCurtin)
	assert.ErrorIs(t, err, ErrClusterUnavailable)
}

func TestNodeContextLicenseKey(t *testing.T) {
	e := newTestEngine(newFakeStore(), &fakeRack{})
	m := testMachine()
	m.LicenseKey = "AAAAA-BBBBB"

	ctx, err := e.NodeContext(context.Background(), m, TypeCommissioning)
	require.NoError(t, err)
	assert.Equal(t, "AAAAA-BBBBB", ctx["license_key"])
}
