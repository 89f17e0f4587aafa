package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store/memory"
)

func TestDirectory_FindByRFIDReturnsCopies(t *testing.T) {
	dir := memory.NewDirectory()
	ctx := context.Background()
	s := &store.Student{ID: "s-1", RegistrationNumber: "REG1", IsActive: true}
	require.NoError(t, dir.SaveHolder(ctx, s))
	exp := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, dir.IssueCard(ctx, store.Card{ID: "c-1", RFIDNumber: "R1", Holder: s, IsActive: true, ExpiresAt: &exp}))

	c, err := dir.FindByRFID(ctx, "R1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, store.CardTypeStudent, c.Type)

	c.Holder.(*store.Student).IsActive = false
	*c.ExpiresAt = time.Time{}

	again, err := dir.FindByRFID(ctx, "R1")
	require.NoError(t, err)
	assert.True(t, again.Holder.Active())
	assert.Equal(t, exp, *again.ExpiresAt)

	none, err := dir.FindByRFID(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestDirectory_IssueCardRules(t *testing.T) {
	dir := memory.NewDirectory()
	ctx := context.Background()
	s := &store.Student{ID: "s-1", IsActive: true}
	other := &store.Staff{ID: "st-1", IsActive: true}

	err := dir.IssueCard(ctx, store.Card{RFIDNumber: "R1", Holder: s})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, dir.SaveHolder(ctx, s))
	require.NoError(t, dir.SaveHolder(ctx, other))
	require.NoError(t, dir.IssueCard(ctx, store.Card{RFIDNumber: "R1", Holder: s}))

	assert.ErrorIs(t, dir.IssueCard(ctx, store.Card{RFIDNumber: "R1", Holder: other}), store.ErrConflict)
	assert.ErrorIs(t, dir.IssueCard(ctx, store.Card{RFIDNumber: "R2", Holder: s}), store.ErrConflict)
	assert.Error(t, dir.IssueCard(ctx, store.Card{RFIDNumber: "R3", Type: store.CardTypeSecurity, Holder: other}))

	assert.ErrorIs(t, dir.SetActive(ctx, "R9", true), store.ErrNotFound)
}

func TestDirectory_MissingHolder(t *testing.T) {
	dir := memory.NewDirectory()
	ctx := context.Background()
	s := &store.Student{ID: "s-1", IsActive: true}
	require.NoError(t, dir.SaveHolder(ctx, s))
	require.NoError(t, dir.IssueCard(ctx, store.Card{RFIDNumber: "R1", Holder: s, IsActive: true}))

	dir.DeleteHolder(store.CardTypeStudent, "s-1")

	c, err := dir.FindByRFID(ctx, "R1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Nil(t, c.Holder)
	assert.Equal(t, store.CardTypeStudent, c.Type)
}
