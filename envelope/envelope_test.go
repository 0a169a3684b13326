package envelope

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinkai-net/shinkai-node/clock"
	"github.com/shinkai-net/shinkai-node/crypto"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time                       { return f.t }
func (f fixedClock) NewTimer(d time.Duration) *time.Timer { return time.NewTimer(d) }

func buildPlainEnvelope(t *testing.T, signSK [64]byte) *Envelope {
	t.Helper()
	env, err := NewBuilder(fixedClock{t: time.Unix(1700000000, 0)}).
		WithContent("Hello World 1", SchemaTagTextMessage).
		WithRouting("main", "main", "inbox::@@a::@@b::false").
		WithExternalMeta("@@a", "@@b", "", nil).
		Build(signSK)
	require.NoError(t, err)
	return env
}

func TestSignatureRoundTrip(t *testing.T) {
	kp, err := crypto.GenerateSignKeyPair()
	require.NoError(t, err)

	env := buildPlainEnvelope(t, kp.Private)
	valid, err := Verify(env, kp.Public)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestSignatureRoundTripRejectsTamperedEnvelope(t *testing.T) {
	kp, err := crypto.GenerateSignKeyPair()
	require.NoError(t, err)

	env := buildPlainEnvelope(t, kp.Private)
	env.Body.MessageData.RawContent = "tampered"

	valid, err := Verify(env, kp.Public)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestCanonicalHashDeterministic(t *testing.T) {
	kp, err := crypto.GenerateSignKeyPair()
	require.NoError(t, err)

	envA := buildPlainEnvelope(t, kp.Private)
	envB := buildPlainEnvelope(t, kp.Private)

	hashA, err := CanonicalHash(envA)
	require.NoError(t, err)
	hashB, err := CanonicalHash(envB)
	require.NoError(t, err)
	assert.Equal(t, hashA, hashB)
}

func TestBuildRejectsMissingFields(t *testing.T) {
	signKP, err := crypto.GenerateSignKeyPair()
	require.NoError(t, err)

	_, err = NewBuilder(clock.Default).
		WithContent("hi", SchemaTagTextMessage).
		Build(signKP.Private)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestOuterEncryptDecryptRoundTrip(t *testing.T) {
	signKP, err := crypto.GenerateSignKeyPair()
	require.NoError(t, err)
	nodeKP, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	env, err := NewBuilder(fixedClock{t: time.Unix(1700000001, 0)}).
		WithContent("secret payload", SchemaTagTextMessage).
		WithRouting("main", "main", "inbox::@@a::@@b::true").
		WithExternalMeta("@@a", "@@b", "", nil).
		EncryptBodyFor(nodeKP.Public).
		Build(signKP.Private)
	require.NoError(t, err)
	assert.Equal(t, EncryptionMethodX25519ChaCha20Poly1305, env.EncryptionMethodOuter)
	assert.Equal(t, BodyKindEncrypted, env.Body.Kind)

	opened, err := DecryptOuterLayer(env, nodeKP, signKP.Public)
	require.NoError(t, err)
	assert.Equal(t, BodyKindUnencrypted, opened.Body.Kind)
	assert.Equal(t, "secret payload", opened.Body.MessageData.RawContent)
}

func TestOuterDecryptFailsForWrongRecipient(t *testing.T) {
	signKP, err := crypto.GenerateSignKeyPair()
	require.NoError(t, err)
	nodeKP, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	other, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	env, err := NewBuilder(clock.Default).
		WithContent("secret payload", SchemaTagTextMessage).
		WithRouting("main", "main", "inbox::@@a::@@b::true").
		WithExternalMeta("@@a", "@@b", "", nil).
		EncryptBodyFor(nodeKP.Public).
		Build(signKP.Private)
	require.NoError(t, err)

	_, err = DecryptOuterLayer(env, other, signKP.Public)
	assert.Error(t, err)
}

func TestContentEncryptDecryptRoundTrip(t *testing.T) {
	signKP, err := crypto.GenerateSignKeyPair()
	require.NoError(t, err)
	profileKP, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	env, err := NewBuilder(clock.Default).
		WithContent("profile secret", SchemaTagTextMessage).
		WithRouting("main", "main", "inbox::@@a::@@b::false").
		WithExternalMeta("@@a", "@@b", "", nil).
		EncryptContentFor(profileKP.Public).
		Build(signKP.Private)
	require.NoError(t, err)
	assert.Equal(t, MessageDataKindEncrypted, env.Body.MessageData.Kind)
	assert.Equal(t, EncryptionMethodX25519ChaCha20Poly1305, env.Body.InternalMeta.ContentEncryptionMethod)
	assert.NotEqual(t, [32]byte{}, env.Body.MessageData.EphemeralPublicKey)

	sharedKey, err := crypto.DeriveSharedSecret(env.Body.MessageData.EphemeralPublicKey, profileKP.Private)
	require.NoError(t, err)
	rawContent, schemaTag, err := DecryptContent(env.Body.MessageData, sharedKey)
	require.NoError(t, err)
	assert.Equal(t, "profile secret", rawContent)
	assert.Equal(t, SchemaTagTextMessage, schemaTag)
}

func TestContentEncryptedMessageDataSurvivesJSONRoundTrip(t *testing.T) {
	signKP, err := crypto.GenerateSignKeyPair()
	require.NoError(t, err)
	profileKP, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	env, err := NewBuilder(clock.Default).
		WithContent("wire secret", SchemaTagTextMessage).
		WithRouting("main", "main", "inbox::@@a::@@b::false").
		WithExternalMeta("@@a", "@@b", "", nil).
		EncryptContentFor(profileKP.Public).
		Build(signKP.Private)
	require.NoError(t, err)

	data, err := env.Body.MessageData.MarshalJSON()
	require.NoError(t, err)

	var decoded MessageData
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.Equal(t, env.Body.MessageData.EphemeralPublicKey, decoded.EphemeralPublicKey)
	assert.Equal(t, env.Body.MessageData.Ciphertext, decoded.Ciphertext)
	assert.Equal(t, env.Body.MessageData.Nonce, decoded.Nonce)

	sharedKey, err := crypto.DeriveSharedSecret(decoded.EphemeralPublicKey, profileKP.Private)
	require.NoError(t, err)
	rawContent, _, err := DecryptContent(&decoded, sharedKey)
	require.NoError(t, err)
	assert.Equal(t, "wire secret", rawContent)
}

// TestEnvelopeSurvivesJSONRoundTrip checks canonical hash determinism at
// the struct level: re-parsing a built
// envelope's wire bytes must recover every field exactly.
func TestEnvelopeSurvivesJSONRoundTrip(t *testing.T) {
	signKP, err := crypto.GenerateSignKeyPair()
	require.NoError(t, err)

	env := buildPlainEnvelope(t, signKP.Private)

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))

	if diff := cmp.Diff(env, &decoded); diff != "" {
		t.Fatalf("envelope mismatch after JSON round trip (-want +got):\n%s", diff)
	}
}

func TestValidateSchemaTagRejectsUnknown(t *testing.T) {
	assert.NoError(t, ValidateSchemaTag(SchemaTagTextMessage))
	assert.Error(t, ValidateSchemaTag(SchemaTag("NotARealTag")))
}
