// internal/domain/training_plan.go
package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PlanType string

const (
	PlanTraining  PlanType = "training"
	PlanNutrition PlanType = "nutrition"
	PlanBundle    PlanType = "bundle"
)

// Plan is the versioned container a coach builds and assigns.
type Plan struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID       primitive.ObjectID `bson:"tenantId" json:"tenantId"`
	Name           string             `bson:"name" json:"name"`
	PlanType       PlanType           `bson:"planType" json:"planType"`
	CurrentVersion int                `bson:"currentVersion" json:"currentVersion"`
	CreatedBy      primitive.ObjectID `bson:"createdBy" json:"createdBy"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// PlanVersion is an immutable snapshot of a plan's content.
type PlanVersion struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID  primitive.ObjectID `bson:"tenantId" json:"tenantId"`
	PlanID    primitive.ObjectID `bson:"planId" json:"planId"`
	Version   int                `bson:"version" json:"version"`
	Content   PlanContent        `bson:"content" json:"content"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

type PlanContent struct {
	Description     string        `bson:"description,omitempty" json:"description,omitempty"`
	DurationWeeks   int           `bson:"durationWeeks,omitempty" json:"durationWeeks,omitempty"`
	WorkoutsPerWeek int           `bson:"workoutsPerWeek,omitempty" json:"workoutsPerWeek,omitempty"`
	Workouts        []PlanWorkout `bson:"workouts,omitempty" json:"workouts,omitempty"`
	Meals           []PlanMeal    `bson:"meals,omitempty" json:"meals,omitempty"`
	DailyCalories   int           `bson:"dailyCalories,omitempty" json:"dailyCalories,omitempty"`
	Macros          *MacroSplit   `bson:"macros,omitempty" json:"macros,omitempty"`
	Notes           string        `bson:"notes,omitempty" json:"notes,omitempty"`
}

type PlanWorkout struct {
	Name      string         `bson:"name" json:"name"`
	DayOfWeek int            `bson:"dayOfWeek,omitempty" json:"dayOfWeek,omitempty"` // 1 (Mon) - 7 (Sun)
	Exercises []PlanExercise `bson:"exercises" json:"exercises"`
}

type PlanExercise struct {
	ExerciseID *primitive.ObjectID `bson:"exerciseId,omitempty" json:"exerciseId,omitempty"`
	Name       string              `bson:"name" json:"name"`
	Sets       int                 `bson:"sets,omitempty" json:"sets,omitempty"`
	Reps       string              `bson:"reps,omitempty" json:"reps,omitempty"` // e.g. "8-12"
	Rest       string              `bson:"rest,omitempty" json:"rest,omitempty"`
	Notes      string              `bson:"notes,omitempty" json:"notes,omitempty"`
}

type PlanMeal struct {
	Name     string   `bson:"name" json:"name"`
	Time     string   `bson:"time,omitempty" json:"time,omitempty"`
	Items    []string `bson:"items" json:"items"`
	Calories int      `bson:"calories,omitempty" json:"calories,omitempty"`
}

type MacroSplit struct {
	ProteinG int `bson:"proteinG" json:"proteinG"`
	CarbsG   int `bson:"carbsG" json:"carbsG"`
	FatG     int `bson:"fatG" json:"fatG"`
}

// DurationOrDefault returns the plan's duration in weeks, falling back to def.
func (c PlanContent) DurationOrDefault(def int) int {
	if c.DurationWeeks > 0 {
		return c.DurationWeeks
	}
	return def
}
