// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sim

import "math"

const (
	gravity = 9.81

	maxPackingFraction  = 0.64
	hinderedSettlingExp = 4.65 // Richardson-Zaki

	// Share of the bowl radius a droplet has to travel to be captured.
	separationDistanceRatio = 0.3
	// Steepness of the logistic sigma-to-efficiency curve.
	sigmaSteepness = 2.5

	maxOilEfficiency    = 99.5
	maxSolidsEfficiency = 99.9
	minFlowM3S          = 0.001
)

// Separation is the outcome of the separation model at one operating point.
type Separation struct {
	// FineEfficiency is the recovery of the fine oil fraction in percent.
	FineEfficiency   float64 `json:"fineEfficiency"`
	SolidsEfficiency float64 `json:"solidsEfficiency"`
	OilOut           float64 `json:"oilOut"`
	WaterOut         float64 `json:"waterOut"`
	SolidsOut        float64 `json:"solidsOut"`
	// OIW is the oil-in-water of the water outlet in ppm.
	OIW           float64 `json:"oiw"`
	GForce        float64 `json:"gForce"`
	ResidenceTime float64 `json:"residenceTime"`
	Viscosity     float64 `json:"viscosity"`
}

// Viscosity returns the water viscosity in Pa·s at tempC.
func Viscosity(feed Feed, tempC float64) float64 {
	return feed.WaterViscosity * 1e-3 * math.Exp(feed.ViscosityTempCoeff*(25-tempC))
}

// GForce returns the bowl acceleration in multiples of g.
func GForce(bowl Bowl, speedRPM float64) float64 {
	return acceleration(bowl, speedRPM) / gravity
}

func acceleration(bowl Bowl, speedRPM float64) float64 {
	r := bowl.Diameter / 2000
	omega := speedRPM * 2 * math.Pi / 60

	return omega * omega * r
}

// StokesVelocity returns the settling velocity in m/s of a particle of diameterM metres.
func StokesVelocity(diameterM, deltaRho, viscosity, accel, sphericity float64) float64 {
	if viscosity <= 0 {
		return 0
	}

	return math.Abs(diameterM * diameterM * deltaRho * accel * sphericity / (18 * viscosity))
}

// Hindered applies the Richardson-Zaki correction for the volume fraction of solids.
func Hindered(velocity, solidsFraction float64) float64 {
	if solidsFraction >= maxPackingFraction {
		return 0
	}

	return velocity * math.Pow(1-solidsFraction/maxPackingFraction, hinderedSettlingExp)
}

// LangmuirCoverage is the interface coverage reached by a demulsifier dose in ppm.
func LangmuirCoverage(dosePPM float64) float64 {
	const k, qMax = 0.05, 0.95

	if dosePPM <= 0 {
		return 0
	}

	return math.Min(qMax, k*dosePPM/(1+k*dosePPM)*qMax)
}

func logistic(sigma float64) float64 {
	return 100 / (1 + math.Exp(-sigmaSteepness*(sigma-1)))
}

// Separate evaluates the separation model. Flow is in m³/h, the outlets sum to the feed.
func Separate(feed Feed, bowl Bowl, tempC, speedRPM, flowM3H float64) Separation {
	flow := math.Max(0, flowM3H)
	visc := Viscosity(feed, tempC)
	accel := acceleration(bowl, speedRPM)
	r := bowl.Diameter / 2000

	water := feed.WaterDensity + feed.Salinity*0.0007
	hindrance := feed.SolidsFraction + feed.OilFraction*0.1

	oilV := Hindered(StokesVelocity(feed.FineDroplet*1e-6, water-feed.OilDensity, visc, accel, 1), hindrance)
	solidsV := Hindered(StokesVelocity(feed.SolidsD50*1e-6, feed.SolidsDensity-water, visc, accel, feed.SolidsSphericity), hindrance)

	volume := math.Pi * r * r * bowl.Length / 1000
	residence := volume / math.Max(flow/3600, minFlowM3S)
	distance := r * separationDistanceRatio

	emulsion := 1 - feed.EmulsionStability*0.3*(1-feed.DemulsifierEff*LangmuirCoverage(feed.DemulsifierDose))/(feed.InterfacialTension/25)
	tempFactor := 1 + (tempC-60)*0.008
	flowFactor := math.Max(0.6, 1-(flow-10)*0.04)

	fineEff := clamp(logistic(oilV*residence/distance)*flowFactor*emulsion*tempFactor, 0, maxOilEfficiency)
	solidsEff := clamp(logistic(solidsV*residence/distance)*flowFactor*tempFactor, 0, maxSolidsEfficiency)

	oilIn := flow * feed.OilFraction
	carryover := oilIn * feed.FineFraction * (1 - fineEff/100)
	solidsOut := flow * feed.SolidsFraction * solidsEff / 100
	oilOut := oilIn - carryover
	waterOut := flow - oilOut - solidsOut

	oiw := 0.0
	if waterOut > 0 {
		oiw = carryover / waterOut * 1e6 * feed.OilDensity / feed.WaterDensity
	}

	return Separation{
		FineEfficiency:   fineEff,
		SolidsEfficiency: solidsEff,
		OilOut:           oilOut,
		WaterOut:         waterOut,
		SolidsOut:        solidsOut,
		OIW:              oiw,
		GForce:           accel / gravity,
		ResidenceTime:    residence,
		Viscosity:        visc,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
