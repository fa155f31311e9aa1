package args

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionCompare(t *testing.T) {
	res, err := Partition([]string{"compoundA", "compoundB", "--names", "Aspirin,Ibuprofen"}, CompareSpec)
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"compoundA", "compoundB"}, res.Positional); diff != "" {
		t.Errorf("positional mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Aspirin,Ibuprofen", res.Value("names"))
	assert.True(t, res.Has("names"))
	assert.False(t, res.Has("output"))
	assert.Equal(t, "pdf", res.Value("format"))
}

func TestPartitionPreservesOrderAcrossFlags(t *testing.T) {
	tokens := []string{"--output", "out.pdf", "CC(=O)Oc1ccccc1C(=O)O", "--format", "json", "CC(C)Cc1ccc(cc1)C(C)C(=O)O", "c1ccccc1"}
	res, err := Partition(tokens, CompareSpec)
	require.NoError(t, err)

	want := []string{"CC(=O)Oc1ccccc1C(=O)O", "CC(C)Cc1ccc(cc1)C(C)C(=O)O", "c1ccccc1"}
	if diff := cmp.Diff(want, res.Positional); diff != "" {
		t.Errorf("positional mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "out.pdf", res.Value("output"))
	assert.Equal(t, "json", res.Value("format"))
}

func TestPartitionTooFewPositionals(t *testing.T) {
	_, err := Partition([]string{"compoundA"}, CompareSpec)
	require.Error(t, err)

	var usage *UsageError
	require.True(t, errors.As(err, &usage))
	assert.Contains(t, usage.Reason, "at least 2")
	assert.Contains(t, err.Error(), "usage: pharmaclaw compare")
}

func TestPartitionUnknownFlag(t *testing.T) {
	for _, tokens := range [][]string{
		{"compoundA", "compoundB", "--bogus"},
		{"-x", "compoundA", "compoundB"},
		{"compoundA", "--bogus=1", "compoundB"},
	} {
		_, err := Partition(tokens, CompareSpec)
		var usage *UsageError
		require.ErrorAs(t, err, &usage, "tokens %v", tokens)
		assert.Contains(t, usage.Reason, "unknown")
	}
}

func TestPartitionMissingValue(t *testing.T) {
	_, err := Partition([]string{"compoundA", "compoundB", "--names"}, CompareSpec)
	var usage *UsageError
	require.ErrorAs(t, err, &usage)
}

func TestPartitionDoubleDash(t *testing.T) {
	res, err := Partition([]string{"compoundA", "--", "--not-a-flag"}, CompareSpec)
	require.NoError(t, err)
	assert.Equal(t, []string{"compoundA", "--not-a-flag"}, res.Positional)
}

func TestPartitionHelpSkipsMinimum(t *testing.T) {
	res, err := Partition([]string{"-h"}, CompareSpec)
	require.NoError(t, err)
	assert.True(t, res.Help)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"Aspirin", "Ibuprofen"}, SplitList(" Aspirin, ,Ibuprofen "))
	assert.Nil(t, SplitList(""))
}
