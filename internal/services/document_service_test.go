package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListByUser(t *testing.T) {
	svc := NewDocumentService(userDocs())

	docs, err := svc.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	docs, err = svc.ListByUser(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}
