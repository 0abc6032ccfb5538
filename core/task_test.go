package core

import (
	"context"
	"testing"
)

// TestTaskID_StringAndIsZero verifies TaskID zero-state and string behavior
// Given: A zero TaskID and a generated TaskID
// When: IsZero and String are called
// Then: Zero ID reports true and generated ID is non-zero with non-empty string
func TestTaskID_StringAndIsZero(t *testing.T) {
	// Arrange
	var zero TaskID

	// Act and Assert
	if !zero.IsZero() {
		t.Fatal("zero TaskID should report IsZero() == true")
	}

	// Act
	id := GenerateTaskID()

	// Assert
	if id.IsZero() {
		t.Fatal("generated TaskID should not be zero")
	}
	if id.String() == "" {
		t.Fatal("TaskID.String() should not be empty")
	}
}

// TestCurrentQueue verifies extracting the queue from context
// Given: A plain context and a context annotated with a queue
// When: CurrentQueue is called
// Then: It returns nil for plain context and the stored queue for annotated context
func TestCurrentQueue(t *testing.T) {
	// Arrange, Act and Assert - plain context
	if got := CurrentQueue(context.Background()); got != nil {
		t.Fatalf("CurrentQueue(background) = %#v, want nil", got)
	}

	// Arrange
	queue := &MockQueue{}
	ctx := withQueue(context.Background(), queue)

	// Act and Assert
	if got := CurrentQueue(ctx); got != queue {
		t.Fatal("CurrentQueue(ctx) did not return the queue from context")
	}
}

// TestQoS_String verifies each class maps to its stable label
func TestQoS_String(t *testing.T) {
	cases := []struct {
		qos  QoS
		want string
	}{
		{QoSBackground, "background"},
		{QoSUtility, "utility"},
		{QoSDefault, "default"},
		{QoSUserInteractive, "user_interactive"},
		{QoS(42), "unknown"},
	}

	for _, tc := range cases {
		if got := tc.qos.String(); got != tc.want {
			t.Errorf("QoS(%d).String() = %q, want %q", int(tc.qos), got, tc.want)
		}
	}
}

// TestTraitsConstructors verifies the convenience constructors set the class
func TestTraitsConstructors(t *testing.T) {
	if got := DefaultTraits().QoS; got != QoSDefault {
		t.Errorf("DefaultTraits().QoS = %v, want %v", got, QoSDefault)
	}
	if got := TraitsUserInteractive().QoS; got != QoSUserInteractive {
		t.Errorf("TraitsUserInteractive().QoS = %v, want %v", got, QoSUserInteractive)
	}
	if got := TraitsUtility().QoS; got != QoSUtility {
		t.Errorf("TraitsUtility().QoS = %v, want %v", got, QoSUtility)
	}
	if got := TraitsBackground().QoS; got != QoSBackground {
		t.Errorf("TraitsBackground().QoS = %v, want %v", got, QoSBackground)
	}
	if got := TraitsFor(QoSUtility).QoS; got != QoSUtility {
		t.Errorf("TraitsFor(QoSUtility).QoS = %v, want %v", got, QoSUtility)
	}
}
