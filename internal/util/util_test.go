package util

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerCreatesFile(t *testing.T) {
	dir := t.TempDir()

	closer, err := InitLogger(LogConfig{Level: "debug", Directory: dir, MaxBackups: 3})
	require.NoError(t, err)
	defer closer.Close()

	matches, err := filepath.Glob(filepath.Join(dir, logFilePrefix+"*.log"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestCleanOldLogsKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"quarry_2024-01-01.log",
		"quarry_2024-01-02.log",
		"quarry_2024-01-03.log",
		"quarry_2024-01-04.log",
		"other.log",
	}
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0644))
	}

	assert.Equal(t, 2, cleanOldLogs(dir, 2))

	assert.NoFileExists(t, filepath.Join(dir, "quarry_2024-01-01.log"))
	assert.NoFileExists(t, filepath.Join(dir, "quarry_2024-01-02.log"))
	assert.FileExists(t, filepath.Join(dir, "quarry_2024-01-03.log"))
	assert.FileExists(t, filepath.Join(dir, "quarry_2024-01-04.log"))
	assert.FileExists(t, filepath.Join(dir, "other.log"))
}

func TestAdminCertificateReusesValidPair(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "tls", "cert.pem")
	keyFile := filepath.Join(dir, "tls", "key.pem")

	first, err := AdminCertificate(certFile, keyFile, "10.0.0.5", "admin.example")
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(first.Certificate[0])
	require.NoError(t, err)
	assert.Contains(t, leaf.DNSNames, "admin.example")
	assert.Contains(t, leaf.DNSNames, "localhost")
	assert.True(t, leaf.IPAddresses[len(leaf.IPAddresses)-1].Equal(net.ParseIP("10.0.0.5")))

	second, err := AdminCertificate(certFile, keyFile)
	require.NoError(t, err)
	assert.Equal(t, first.Certificate[0], second.Certificate[0], "existing cert must be reused")
}

func TestAdminCertificateReplacesGarbage(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, []byte("junk"), 0644))
	require.NoError(t, os.WriteFile(keyFile, []byte("junk"), 0600))

	_, err := AdminCertificate(certFile, keyFile, "0.0.0.0")
	require.NoError(t, err)
	_, err = tls.LoadX509KeyPair(certFile, keyFile)
	require.NoError(t, err)
}

func TestDescribeHost(t *testing.T) {
	info := DescribeHost()
	assert.NotEmpty(t, info.Architecture)
	assert.Positive(t, info.CPUCores)
}

func TestSampleDropsFailedSections(t *testing.T) {
	p := Probe{
		CPU:    func() (float64, error) { return 33, nil },
		Memory: func() (MemoryStat, error) { return MemoryStat{}, errors.New("no procfs") },
		Disk: func(path string) (DiskStat, error) {
			return DiskStat{Path: path, UsedPercent: 50}, nil
		},
	}

	s := p.Sample("/data")
	require.NotNil(t, s.CPUPercent)
	assert.Equal(t, 33.0, *s.CPUPercent)
	assert.Nil(t, s.Memory)
	require.NotNil(t, s.Disk)
	assert.Equal(t, "/data", s.Disk.Path)
	assert.Positive(t, s.Goroutines)
}
