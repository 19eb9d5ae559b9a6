package inventory

import (
	"github.com/jhoicas/materiales-api/internal/domain"
	"github.com/shopspring/decimal"
)

// CostPrecision es la cantidad de decimales del costo promedio ponderado.
const CostPrecision int32 = 4

// CostCalculator implementa la lógica de costo promedio ponderado (servicio de dominio).
// NuevoCosto = ((SaldoActual * CostoActual) + (CantEntrada * CostoEntrada)) / (SaldoActual + CantEntrada)
// redondeado a CostPrecision decimales, mitad hacia arriba. costoActual nil cuenta como cero.
// Si el saldo resultante es exactamente cero la división no está definida y se devuelve ErrInvalidState.
func CostCalculator(saldoActual decimal.Decimal, costoActual *decimal.Decimal, cantEntrada, costoEntrada decimal.Decimal) (decimal.Decimal, error) {
	sum := saldoActual.Add(cantEntrada)
	if sum.IsZero() {
		return decimal.Zero, domain.ErrInvalidState
	}
	current := decimal.Zero
	if costoActual != nil {
		current = *costoActual
	}
	num := saldoActual.Mul(current).Add(cantEntrada.Mul(costoEntrada))
	// DivRound redondea la mitad alejándose de cero, que para costos positivos es HALF_UP.
	return num.DivRound(sum, CostPrecision), nil
}

// FitsPrecision indica si v se guarda sin pérdida en una columna NUMERIC(18,4).
func FitsPrecision(v decimal.Decimal) bool {
	return v.Equal(v.Truncate(CostPrecision))
}

// ItemCost es el costo de consumir quantity unidades al costo promedio avgCost (nil = 0),
// redondeado a CostPrecision decimales igual que el resto de montos persistidos.
func ItemCost(avgCost *decimal.Decimal, quantity decimal.Decimal) decimal.Decimal {
	if avgCost == nil {
		return decimal.Zero
	}
	return avgCost.Mul(quantity).Round(CostPrecision)
}
