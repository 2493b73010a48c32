package datacenter

import (
	"testing"

	"github.com/mtprotogo/tgnet/handshake"
	"github.com/mtprotogo/tgnet/mtcrypto"
	"github.com/mtprotogo/tgnet/transport"
	"github.com/stretchr/testify/require"
)

func TestSaltSelectionPicksLongestLived(t *testing.T) {
	dc := New(2, false)
	dc.MergeSalts(1000, []Salt{
		{ValidSince: 900, ValidUntil: 1100, Value: 1}, // remaining 100
		{ValidSince: 950, ValidUntil: 1300, Value: 2}, // remaining 300, wins
		{ValidSince: 990, ValidUntil: 1050, Value: 3}, // remaining 50
	})
	got, ok := dc.SelectSalt(1000)
	require.True(t, ok)
	require.Equal(t, int64(2), got)
}

func TestSaltSelectionPrunesExpired(t *testing.T) {
	dc := New(2, false)
	dc.MergeSalts(2000, []Salt{
		{ValidSince: 100, ValidUntil: 200, Value: 1},
		{ValidSince: 1900, ValidUntil: 2500, Value: 2},
	})
	_, ok := dc.SelectSalt(3000)
	require.False(t, ok)
	got, ok := dc.SelectSalt(2000)
	require.True(t, ok)
	require.Equal(t, int64(2), got)
}

func TestSaltMergeDedupsByValue(t *testing.T) {
	dc := New(2, false)
	dc.MergeSalts(0, []Salt{{ValidSince: 0, ValidUntil: 1000, Value: 7}})
	dc.MergeSalts(0, []Salt{{ValidSince: 0, ValidUntil: 1000, Value: 7}})
	require.Len(t, dc.salts, 1)
}

func TestAddressRotationAdvancesPortThenAddress(t *testing.T) {
	dc := New(2, false)
	dc.AddAddress(TcpAddress{IP: "1.1.1.1", Port: 443})
	dc.AddAddress(TcpAddress{IP: "2.2.2.2", Port: 443})

	var ips []string
	var ports []int
	for i := 0; i < 5; i++ {
		ip, port, _, err := dc.NextAddressOrPort(0)
		require.NoError(t, err)
		ips = append(ips, ip)
		ports = append(ports, port)
	}
	// First address's 4 default ports exhaust before moving to the
	// second address.
	require.Equal(t, []string{"1.1.1.1", "1.1.1.1", "1.1.1.1", "1.1.1.1", "2.2.2.2"}, ips)
	require.Equal(t, []int{443, 80, 5222, 443, 443}, ports)
}

func TestAddressRotationSkipsPortForStatic(t *testing.T) {
	dc := New(2, false)
	dc.AddAddress(TcpAddress{IP: "1.1.1.1", Port: 5000, Flags: FlagStatic})
	dc.AddAddress(TcpAddress{IP: "2.2.2.2", Port: 443})

	ip, port, _, err := dc.NextAddressOrPort(0)
	require.NoError(t, err)
	require.Equal(t, "1.1.1.1", ip)
	require.Equal(t, 443, port) // defaultPorts[0], STATIC only skips port *rotation*, not the lookup

	ip2, _, _, err := dc.NextAddressOrPort(0)
	require.NoError(t, err)
	require.Equal(t, "2.2.2.2", ip2)
}

func TestAddressWithSecretForcesOwnPort(t *testing.T) {
	dc := New(2, false)
	dc.AddAddress(TcpAddress{IP: "1.1.1.1", Port: 999, Secret: []byte{0xDD, 0x01}})
	ip, port, secret, err := dc.NextAddressOrPort(0)
	require.NoError(t, err)
	require.Equal(t, "1.1.1.1", ip)
	require.Equal(t, 999, port)
	require.Equal(t, []byte{0xDD, 0x01}, secret)
}

func TestGetAuthKeyPrefersPermForCDN(t *testing.T) {
	dc := New(2, true)
	dc.InstallResult(handshake.KindPerm, &handshake.Result{AuthKey: make([]byte, 256), AuthKeyID: 1}, false)
	key, id, err := dc.GetAuthKey(transport.Generic, false, false)
	require.NoError(t, err)
	require.Len(t, key, 256)
	require.Equal(t, uint64(1), id)
}

func TestGetAuthKeyFallsBackToGenericTemp(t *testing.T) {
	dc := New(2, false)
	dc.InstallResult(handshake.KindTempGeneric, &handshake.Result{AuthKey: make([]byte, 256), AuthKeyID: 2}, false)
	_, id, err := dc.GetAuthKey(transport.Generic, false, false)
	require.NoError(t, err)
	require.Equal(t, uint64(2), id)
}

func TestGetAuthKeyMissingReturnsError(t *testing.T) {
	dc := New(2, false)
	_, _, err := dc.GetAuthKey(transport.Generic, false, false)
	require.ErrorIs(t, err, ErrNoKeyAvailable)
}

func TestBeginHandshakeRejectsConcurrentSameKind(t *testing.T) {
	dc := New(2, false)
	kr := &mtcrypto.KeyRing{}
	_, err := dc.BeginHandshake(handshake.KindPerm, kr)
	require.NoError(t, err)
	_, err = dc.BeginHandshake(handshake.KindPerm, kr)
	require.ErrorIs(t, err, ErrHandshakeInFlight)

	dc.FinishHandshake(handshake.KindPerm)
	_, err = dc.BeginHandshake(handshake.KindPerm, kr)
	require.NoError(t, err)
}

func TestConnectionPoolAddRemove(t *testing.T) {
	dc := New(2, false)
	c := transport.NewConnection(transport.Generic, transport.TCPSocketHost{}, 1)
	dc.AddConnection(transport.Generic, c)
	require.Len(t, dc.Pool(transport.Generic), 1)
	dc.RemoveConnection(transport.Generic, c)
	require.Len(t, dc.Pool(transport.Generic), 0)
}
